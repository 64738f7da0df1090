package git

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Open opens an existing git repository using CLI-only detection.
func Open(path string) (*Repository, error) {
	start := time.Now()
	defer func() {
		slog.Debug("[DEBUG-GIT] Open repository",
			"duration_ms", time.Since(start).Milliseconds(),
			"path", path)
	}()

	_, err := executeGitCommandAt(path, []string{"rev-parse", "--git-dir"})
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %s: %w", path, err)
	}
	return &Repository{path: path}, nil
}

// IsGitRepository checks if the path is a git repository.
// Uses executeGitCommandAt to respect the semaphore concurrency limit.
func IsGitRepository(path string) bool {
	start := time.Now()
	_, err := executeGitCommandAt(path, []string{"rev-parse", "--git-dir"})
	slog.Debug("[DEBUG-GIT] IsGitRepository check",
		"duration_ms", time.Since(start).Milliseconds(),
		"path", path,
		"isGitRepo", err == nil)
	return err == nil
}

// FindRepoRoot returns the root directory of the git repository.
// Returns ("", error) if path is not inside a git repository.
func FindRepoRoot(path string) (string, error) {
	output, err := executeGitCommandAt(path, []string{"rev-parse", "--show-toplevel"})
	if err != nil {
		return "", fmt.Errorf("failed to find repo root: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// IsBare reports whether the repository is bare.
func (r *Repository) IsBare() (bool, error) {
	output, err := r.runGitCommand("rev-parse", "--is-bare-repository")
	if err != nil {
		return false, err
	}
	return output == "true", nil
}

// CommonDir returns the repository's common git directory (shared across
// linked worktrees). Relative results are reported as returned by git;
// callers resolve them against the repository path when needed.
func (r *Repository) CommonDir() (string, error) {
	output, err := r.runGitCommand("rev-parse", "--git-common-dir")
	if err != nil {
		return "", fmt.Errorf("failed to resolve git common dir: %w", err)
	}
	return output, nil
}

// CurrentBranch returns the name of the current branch. Empty string for a
// detached HEAD and for an unborn branch (freshly initialized repository
// with no commits).
func (r *Repository) CurrentBranch() (string, error) {
	output, err := r.runGitCommand("rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		if isUnbornHeadError(err.Error()) {
			slog.Debug("[DEBUG-GIT] CurrentBranch: HEAD is unborn", "path", r.path)
			return "", nil
		}
		return "", err
	}
	if output == "HEAD" {
		return "", nil // detached HEAD
	}
	return output, nil
}

// HasUncommittedChanges checks if the worktree has uncommitted changes.
func (r *Repository) HasUncommittedChanges() (bool, error) {
	output, err := r.runGitCommand("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(output) != "", nil
}

// Stage stages a single file (or directory) for commit.
func (r *Repository) Stage(file string) error {
	if err := ValidateRelativeFilePath(file); err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}
	if _, err := r.runGitCommand("add", "--", file); err != nil {
		return fmt.Errorf("failed to stage %q: %w", file, err)
	}
	return nil
}

// Unstage removes a file from the index, keeping worktree contents.
func (r *Repository) Unstage(file string) error {
	if err := ValidateRelativeFilePath(file); err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}
	if _, err := r.runGitCommand("restore", "--staged", "--", file); err != nil {
		return fmt.Errorf("failed to unstage %q: %w", file, err)
	}
	return nil
}

// Commit records the staged changes with the given message and returns git's
// stdout (commit summary line) for display.
func (r *Repository) Commit(message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message must not be empty")
	}
	output, err := r.runGitCommand("commit", "-m", message)
	if err != nil {
		return "", fmt.Errorf("git commit failed: %w", err)
	}
	return output, nil
}

// Fetch downloads objects and refs from all configured remotes.
func (r *Repository) Fetch() (string, error) {
	output, err := r.runGitCommand("fetch", "--all")
	if err != nil {
		return "", err
	}
	return output, nil
}

// Pull fetches and integrates the current branch from its upstream.
func (r *Repository) Pull() (string, error) {
	output, err := r.runGitCommand("pull")
	if err != nil {
		return "", err
	}
	return output, nil
}

// Push updates the remote with local commits of the current branch.
func (r *Repository) Push() (string, error) {
	output, err := r.runGitCommand("push")
	if err != nil {
		return "", err
	}
	return output, nil
}

// isNoUpstreamError reports whether a git error message indicates a missing
// upstream tracking branch rather than a genuine failure. Known patterns
// (git version/locale dependent):
//   - "fatal: no upstream configured for branch 'xxx'"
//   - "fatal: '@{upstream}' is not a valid ref" (detached HEAD)
//   - "fatal: no such ref: 'xxx@{u}'"
//   - "fatal: HEAD does not point to a branch"
func isNoUpstreamError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "no upstream configured") {
		return true
	}
	if strings.Contains(lower, "does not point to a branch") {
		return true
	}
	if strings.Contains(lower, "no such ref") && containsUpstreamToken(lower) {
		return true
	}
	if strings.Contains(lower, "not a valid ref") && containsUpstreamToken(lower) {
		return true
	}
	return false
}

func containsUpstreamToken(errMsg string) bool {
	return strings.Contains(errMsg, "@{u}") || strings.Contains(errMsg, "@{upstream}") || strings.Contains(errMsg, "upstream")
}

// isUnbornHeadError reports whether a git error message indicates HEAD names
// a branch with no commits yet (a freshly initialized repository). Known
// patterns (git version/locale dependent):
//   - "fatal: ambiguous argument 'HEAD': unknown revision or path not in the working tree"
//   - "fatal: no such branch: 'xxx'" (from @{upstream} resolution)
func isUnbornHeadError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	if strings.Contains(lower, "ambiguous argument 'head'") {
		return true
	}
	if strings.Contains(lower, "unknown revision or path not in the working tree") {
		return true
	}
	return strings.Contains(lower, "no such branch")
}
