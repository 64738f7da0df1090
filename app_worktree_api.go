package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitpkg "github.com/ManMan88/wtview/internal/git"
)

// AddWorktreeOptions holds options for creating a worktree.
//
// Mode semantics:
//   - CreateBranch true: Branch is created at BaseRef (empty = current HEAD)
//     and checked out in the new worktree.
//   - CreateBranch false: Branch must already exist; BaseRef is ignored.
//
// Path is optional. When empty, the worktree is placed under the configured
// default directory, falling back to {repo}.wt/{branch}.
type AddWorktreeOptions struct {
	Path         string `json:"path"`
	Branch       string `json:"branch"`
	CreateBranch bool   `json:"create_branch"`
	BaseRef      string `json:"base_ref"`
}

// ListWorktrees returns all worktrees of the open repository, main worktree
// first. When prune-on-list is enabled, stale entries are pruned first so
// the listing never shows broken links.
func (a *App) ListWorktrees() ([]gitpkg.WorktreeInfo, error) {
	repo, err := a.requireRepo()
	if err != nil {
		return nil, err
	}
	if a.getConfigSnapshot().Worktree.PruneOnList {
		if pruneErr := repo.PruneWorktrees(); pruneErr != nil {
			// Listing still works with stale entries present.
			slog.Warn("[WARN-GIT] prune before list failed", "error", pruneErr)
		}
	}
	return repo.ListWorktrees()
}

// AddWorktree creates a worktree per opts and returns its listing entry.
// On failure after the worktree was created, the worktree (and the branch,
// when this call created it) is rolled back.
func (a *App) AddWorktree(opts AddWorktreeOptions) (info gitpkg.WorktreeInfo, retErr error) {
	repo, err := a.requireRepo()
	if err != nil {
		return gitpkg.WorktreeInfo{}, err
	}

	opts.Branch = strings.TrimSpace(opts.Branch)
	opts.BaseRef = strings.TrimSpace(opts.BaseRef)
	opts.Path = strings.TrimSpace(opts.Path)
	if err := gitpkg.ValidateBranchName(opts.Branch); err != nil {
		return gitpkg.WorktreeInfo{}, err
	}

	wtPath, err := a.resolveWorktreePath(repo, opts)
	if err != nil {
		return gitpkg.WorktreeInfo{}, err
	}

	worktreeCreated := false
	defer func() {
		if retErr == nil || !worktreeCreated {
			return
		}
		branch := ""
		if opts.CreateBranch {
			branch = opts.Branch
		}
		if rollbackErr := rollbackWorktree(repo, wtPath, branch); rollbackErr != nil {
			retErr = fmt.Errorf("%w (worktree rollback also failed: %v)", retErr, rollbackErr)
		}
	}()

	if opts.CreateBranch {
		exists, existsErr := repo.BranchExists(opts.Branch)
		if existsErr == nil && exists {
			return gitpkg.WorktreeInfo{}, fmt.Errorf("branch already exists: %s", opts.Branch)
		}
		if err := repo.AddWorktreeNewBranch(wtPath, opts.Branch, opts.BaseRef); err != nil {
			return gitpkg.WorktreeInfo{}, err
		}
	} else {
		if err := repo.AddWorktree(wtPath, opts.Branch); err != nil {
			return gitpkg.WorktreeInfo{}, err
		}
	}
	worktreeCreated = true

	// Copy configured files (e.g. .env) from the main worktree, best effort.
	cfg := a.getConfigSnapshot()
	if copyFailures := copyConfigFilesToWorktree(repo.Path(), wtPath, cfg.Worktree.CopyFiles); len(copyFailures) > 0 {
		slog.Warn("[WARN-GIT] failed to copy one or more configured files to worktree",
			"path", wtPath, "files", copyFailures)
		a.emitRuntimeEvent("worktree:copy-files-failed", map[string]any{
			"path":  wtPath,
			"files": copyFailures,
		})
	}

	return repo.FindWorktree(wtPath)
}

// RemoveWorktree removes a worktree. Without force, removal is refused for
// locked or dirty worktrees; the returned error message tells the UI which
// case applies so it can offer a forced retry.
func (a *App) RemoveWorktree(worktreePath string, force bool) error {
	repo, err := a.requireRepo()
	if err != nil {
		return err
	}
	return repo.RemoveWorktree(strings.TrimSpace(worktreePath), force)
}

// LockWorktree locks a worktree with an optional reason.
func (a *App) LockWorktree(worktreePath, reason string) error {
	repo, err := a.requireRepo()
	if err != nil {
		return err
	}
	return repo.LockWorktree(strings.TrimSpace(worktreePath), reason)
}

// UnlockWorktree removes a worktree lock.
func (a *App) UnlockWorktree(worktreePath string) error {
	repo, err := a.requireRepo()
	if err != nil {
		return err
	}
	return repo.UnlockWorktree(strings.TrimSpace(worktreePath))
}

// PruneWorktrees removes stale worktree entries immediately.
func (a *App) PruneWorktrees() error {
	repo, err := a.requireRepo()
	if err != nil {
		return err
	}
	return repo.PruneWorktrees()
}

// resolveWorktreePath returns the absolute path the new worktree should be
// created at, deduplicating against existing directories.
func (a *App) resolveWorktreePath(repo *gitpkg.Repository, opts AddWorktreeOptions) (string, error) {
	if opts.Path != "" {
		if err := gitpkg.ValidateWorktreePath(opts.Path); err != nil {
			return "", err
		}
		return filepath.Clean(opts.Path), nil
	}

	identifier := gitpkg.SanitizeCustomName(opts.Branch)
	cfg := a.getConfigSnapshot()
	var basePath string
	if dir := cfg.Worktree.DefaultDir; dir != "" {
		basePath = filepath.Join(dir, identifier)
	} else {
		basePath = gitpkg.GenerateWorktreePath(repo.Path(), identifier)
	}
	resolved := gitpkg.FindAvailableWorktreePath(basePath)
	if err := gitpkg.ValidateWorktreePath(resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// rollbackWorktree force-removes a partially created worktree and, when
// branch is non-empty, deletes the branch this attempt created.
func rollbackWorktree(repo *gitpkg.Repository, wtPath, branch string) error {
	var errs []error
	if err := repo.RemoveWorktree(wtPath, true); err != nil && !errors.Is(err, gitpkg.ErrWorktreeNotFound) {
		errs = append(errs, err)
	}
	if branch != "" {
		if err := repo.DeleteLocalBranch(branch, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// copyConfigFilesToWorktree copies repository-relative files into a freshly
// created worktree. Returns the relative paths that failed; missing source
// files are skipped silently (a repo without .env is not an error).
func copyConfigFilesToWorktree(repoPath, wtPath string, files []string) []string {
	var failures []string
	for _, relPath := range files {
		srcPath := filepath.Join(repoPath, relPath)
		if _, err := os.Stat(srcPath); err != nil {
			if !os.IsNotExist(err) {
				failures = append(failures, relPath)
			}
			continue
		}
		if err := copyFile(srcPath, filepath.Join(wtPath, relPath)); err != nil {
			slog.Warn("[WARN-GIT] copy to worktree failed",
				"file", relPath, "error", err)
			failures = append(failures, relPath)
		}
	}
	return failures
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}
