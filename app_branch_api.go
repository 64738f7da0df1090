package main

import (
	"errors"
	"fmt"
	"strings"

	gitpkg "github.com/ManMan88/wtview/internal/git"
)

// openWorktreeFn is a test seam for opening a repository handle at a
// worktree path.
var openWorktreeFn = gitpkg.Open

// CommitResult carries the output of a successful commit.
type CommitResult struct {
	Output string `json:"output"`
}

// ListBranches returns local and remote-tracking branches of the open
// repository. The current branch of the main worktree is flagged.
func (a *App) ListBranches() ([]gitpkg.BranchInfo, error) {
	repo, err := a.requireRepo()
	if err != nil {
		return nil, err
	}
	return repo.ListBranches()
}

// CheckoutBranch switches the worktree at worktreePath to the given branch.
func (a *App) CheckoutBranch(worktreePath, branch string) error {
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return err
	}
	return wt.Checkout(strings.TrimSpace(branch))
}

// CurrentBranch returns the branch checked out at worktreePath. Empty
// string means detached HEAD.
func (a *App) CurrentBranch(worktreePath string) (string, error) {
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return "", err
	}
	return wt.CurrentBranch()
}

// GitStatus returns the working tree status of the worktree at
// worktreePath: current branch, per-file staged/unstaged entries, and
// ahead/behind counts against the upstream (both zero without an upstream).
func (a *App) GitStatus(worktreePath string) (gitpkg.StatusSummary, error) {
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return gitpkg.StatusSummary{}, err
	}
	return wt.Status()
}

// StageFile stages a single file (worktree-relative path) in the worktree
// at worktreePath.
func (a *App) StageFile(worktreePath, file string) error {
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return err
	}
	return wt.Stage(file)
}

// UnstageFile removes a single file from the index without touching the
// working tree.
func (a *App) UnstageFile(worktreePath, file string) error {
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return err
	}
	return wt.Unstage(file)
}

// Commit creates a commit from the staged changes in the worktree at
// worktreePath.
func (a *App) Commit(worktreePath, message string) (CommitResult, error) {
	if strings.TrimSpace(message) == "" {
		return CommitResult{}, errors.New("commit message is required")
	}
	wt, err := a.openWorktree(worktreePath)
	if err != nil {
		return CommitResult{}, err
	}
	output, err := wt.Commit(message)
	if err != nil {
		return CommitResult{}, err
	}
	return CommitResult{Output: output}, nil
}

// openWorktree opens a repository handle at a worktree path after verifying
// that a repository is open and the path is one of its worktrees. The check
// keeps Wails-exposed methods from running git commands in arbitrary
// directories supplied by the frontend.
func (a *App) openWorktree(worktreePath string) (*gitpkg.Repository, error) {
	repo, err := a.requireRepo()
	if err != nil {
		return nil, err
	}
	worktreePath = strings.TrimSpace(worktreePath)
	if worktreePath == "" {
		return nil, errors.New("worktree path is required")
	}
	if _, err := repo.FindWorktree(worktreePath); err != nil {
		return nil, fmt.Errorf("not a worktree of the open repository: %w", err)
	}
	return openWorktreeFn(worktreePath)
}
