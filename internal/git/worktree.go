package git

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ListWorktrees returns detailed information about all worktrees of the
// repository, main worktree first. Bare entries reported by
// `git worktree list --porcelain` are excluded.
func (r *Repository) ListWorktrees() ([]WorktreeInfo, error) {
	output, err := r.runGitCommand("worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}

	worktrees := []WorktreeInfo{}
	var current WorktreeInfo
	isFirst := true
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "worktree "):
			if !isFirst && current.Path != "" {
				worktrees = append(worktrees, current)
			}
			current = WorktreeInfo{
				// git returns forward slashes on Windows; normalize to OS path separator.
				Path:   filepath.FromSlash(strings.TrimPrefix(line, "worktree ")),
				IsMain: isFirst,
			}
			isFirst = false
		case strings.HasPrefix(line, "branch refs/heads/"):
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		case line == "detached":
			current.IsDetached = true
		case strings.HasPrefix(line, "locked"):
			current.IsLocked = true
			current.LockReason = strings.TrimSpace(strings.TrimPrefix(line, "locked"))
		case line == "bare":
			current.Path = ""
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}

	return worktrees, nil
}

// FindWorktree returns the worktree entry matching the given path, or
// ErrWorktreeNotFound when the path is not a registered worktree.
func (r *Repository) FindWorktree(worktreePath string) (WorktreeInfo, error) {
	worktrees, err := r.ListWorktrees()
	if err != nil {
		return WorktreeInfo{}, err
	}
	wanted := filepath.Clean(worktreePath)
	for _, wt := range worktrees {
		if filepath.Clean(wt.Path) == wanted {
			return wt, nil
		}
	}
	return WorktreeInfo{}, fmt.Errorf("%w: %s", ErrWorktreeNotFound, worktreePath)
}

// AddWorktree creates a worktree at worktreePath checked out to an existing
// branch. Executes: git worktree add -- <path> <branch>
func (r *Repository) AddWorktree(worktreePath, branch string) error {
	if err := ValidateWorktreePath(worktreePath); err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	if _, err := r.runGitCommand("worktree", "add", "--", worktreePath, branch); err != nil {
		return fmt.Errorf("failed to create worktree %q from branch %q: %w", worktreePath, branch, err)
	}
	return nil
}

// AddWorktreeNewBranch creates a worktree with a new branch started at the
// given base commit-ish (empty base means current HEAD).
// Executes: git worktree add -b <branch> -- <path> [<commit-ish>]
func (r *Repository) AddWorktreeNewBranch(worktreePath, branch, base string) error {
	if err := ValidateWorktreePath(worktreePath); err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	if err := ValidateBranchName(branch); err != nil {
		return fmt.Errorf("invalid branch name: %w", err)
	}
	args := []string{"worktree", "add", "-b", branch, "--", worktreePath}
	if base != "" {
		if err := ValidateCommitish(base); err != nil {
			return fmt.Errorf("invalid base commit-ish: %w", err)
		}
		args = append(args, base)
	}
	if _, err := r.runGitCommand(args...); err != nil {
		return fmt.Errorf("failed to create worktree %q with branch %q: %w", worktreePath, branch, err)
	}
	return nil
}

// RemoveWorktree removes a registered worktree. Without force the operation
// is refused when the worktree is locked or has uncommitted changes,
// surfacing ErrWorktreeLocked / ErrUncommittedChanges so the UI can offer a
// forced retry.
func (r *Repository) RemoveWorktree(worktreePath string, force bool) error {
	if err := ValidateWorktreePath(worktreePath); err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}

	wt, err := r.FindWorktree(worktreePath)
	if err != nil {
		return err
	}
	if wt.IsMain {
		return fmt.Errorf("cannot remove the main worktree: %s", worktreePath)
	}

	if !force {
		if wt.IsLocked {
			if wt.LockReason != "" {
				return fmt.Errorf("%w: %s", ErrWorktreeLocked, wt.LockReason)
			}
			return ErrWorktreeLocked
		}
		wtRepo, openErr := Open(wt.Path)
		if openErr != nil {
			return fmt.Errorf("failed to open worktree for clean check: %w", openErr)
		}
		dirty, dirtyErr := wtRepo.HasUncommittedChanges()
		if dirtyErr != nil {
			return fmt.Errorf("failed to check uncommitted changes: %w", dirtyErr)
		}
		if dirty {
			return ErrUncommittedChanges
		}
	}

	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, "--", worktreePath)
	if _, err := r.runGitCommand(args...); err != nil {
		if force {
			return fmt.Errorf("failed to force-remove worktree %q: %w", worktreePath, err)
		}
		return fmt.Errorf("failed to remove worktree %q: %w", worktreePath, err)
	}
	return nil
}

// LockWorktree locks a worktree so git will not prune or move it. The
// reason is optional and shown in worktree listings.
func (r *Repository) LockWorktree(worktreePath, reason string) error {
	if err := ValidateWorktreePath(worktreePath); err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	args := []string{"worktree", "lock"}
	if strings.TrimSpace(reason) != "" {
		args = append(args, "--reason", reason)
	}
	args = append(args, worktreePath)
	if _, err := r.runGitCommand(args...); err != nil {
		return fmt.Errorf("failed to lock worktree %q: %w", worktreePath, err)
	}
	return nil
}

// UnlockWorktree removes the lock from a worktree.
func (r *Repository) UnlockWorktree(worktreePath string) error {
	if err := ValidateWorktreePath(worktreePath); err != nil {
		return fmt.Errorf("invalid worktree path: %w", err)
	}
	if _, err := r.runGitCommand("worktree", "unlock", worktreePath); err != nil {
		return fmt.Errorf("failed to unlock worktree %q: %w", worktreePath, err)
	}
	return nil
}

// PruneWorktrees removes stale worktree entries (broken links) immediately.
func (r *Repository) PruneWorktrees() error {
	if _, err := r.runGitCommand("worktree", "prune", "--expire=now"); err != nil {
		return fmt.Errorf("failed to prune worktrees: %w", err)
	}
	return nil
}
