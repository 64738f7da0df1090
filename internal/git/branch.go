package git

import (
	"fmt"
	"strings"
)

// ListBranches returns all local and remote-tracking branches. The current
// branch of this worktree carries IsCurrent; remote HEAD pointers
// (e.g. origin/HEAD) are excluded.
func (r *Repository) ListBranches() ([]BranchInfo, error) {
	current, err := r.CurrentBranch()
	if err != nil {
		return nil, err
	}

	output, err := r.runGitCommand(
		"for-each-ref",
		"--format=%(refname:short)\t%(refname)",
		"refs/heads", "refs/remotes",
	)
	if err != nil {
		return nil, err
	}

	branches := []BranchInfo{}
	if output == "" {
		return branches, nil
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		short := strings.TrimSpace(parts[0])
		full := strings.TrimSpace(parts[1])
		if short == "" {
			continue
		}
		isRemote := strings.HasPrefix(full, "refs/remotes/")
		if isRemote && strings.HasSuffix(short, "/HEAD") {
			continue
		}
		branches = append(branches, BranchInfo{
			Name:      short,
			IsRemote:  isRemote,
			IsCurrent: !isRemote && short == current && current != "",
		})
	}
	return branches, nil
}

// Checkout switches the worktree to the given branch.
func (r *Repository) Checkout(branch string) error {
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	if _, err := r.runGitCommand("checkout", branch); err != nil {
		return fmt.Errorf("failed to checkout %q: %w", branch, err)
	}
	return nil
}

// BranchExists reports whether a local branch with the given name exists.
// show-ref --quiet gives no stderr on a missing ref, so its exit status is
// the only signal; any failure is treated as "does not exist".
func (r *Repository) BranchExists(branch string) (bool, error) {
	if err := ValidateBranchName(branch); err != nil {
		return false, err
	}
	_, err := r.runGitCommand("show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	return err == nil, nil
}

// DeleteLocalBranch deletes a local branch. Force deletion discards commits
// not merged into HEAD.
func (r *Repository) DeleteLocalBranch(branch string, force bool) error {
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	flag := "-d"
	if force {
		flag = "-D"
	}
	if _, err := r.runGitCommand("branch", flag, branch); err != nil {
		return fmt.Errorf("failed to delete branch %q: %w", branch, err)
	}
	return nil
}
