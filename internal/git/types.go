package git

import "errors"

// Sentinel errors that the UI layer distinguishes from generic failures.
var (
	// ErrUncommittedChanges is returned when a destructive operation is
	// refused because the worktree has uncommitted changes.
	ErrUncommittedChanges = errors.New("worktree has uncommitted changes")
	// ErrWorktreeLocked is returned when removal is refused because the
	// worktree is locked.
	ErrWorktreeLocked = errors.New("worktree is locked")
	// ErrWorktreeNotFound is returned when a path does not correspond to a
	// known worktree of the repository.
	ErrWorktreeNotFound = errors.New("worktree not found")
)

// WorktreeInfo represents information about a git worktree.
type WorktreeInfo struct {
	Path       string `json:"path"`
	Branch     string `json:"branch"`
	IsMain     bool   `json:"is_main"`
	IsDetached bool   `json:"is_detached"`
	IsLocked   bool   `json:"is_locked"`
	LockReason string `json:"lock_reason,omitempty"`
}

// BranchInfo represents a local or remote-tracking branch.
type BranchInfo struct {
	Name      string `json:"name"`
	IsRemote  bool   `json:"is_remote"`
	IsCurrent bool   `json:"is_current"`
}

// FileStatus is one changed file in a status listing. Status is one of:
// untracked, added, modified, deleted, renamed, typechange, conflicted.
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Staged bool   `json:"staged"`
}

// StatusSummary is the full porcelain status of a worktree.
// Branch is empty on detached HEAD. Ahead/Behind are zero when the current
// branch has no upstream configured.
type StatusSummary struct {
	Branch string       `json:"branch"`
	Files  []FileStatus `json:"files"`
	Ahead  int          `json:"ahead"`
	Behind int          `json:"behind"`
}

// Repository wraps git CLI operations.
// All operations use the system git CLI (no embedded git library).
type Repository struct {
	path string
}

// Path returns the directory the repository handle is bound to.
func (r *Repository) Path() string {
	return r.path
}
