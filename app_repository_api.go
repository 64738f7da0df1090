package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	gitpkg "github.com/ManMan88/wtview/internal/git"
	"github.com/ManMan88/wtview/internal/store"
	"github.com/ManMan88/wtview/internal/watcher"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// watchRepoFn is a test seam for repository watcher construction.
var watchRepoFn = watcher.Watch

// RepositoryInfo describes an opened or validated repository.
type RepositoryInfo struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	IsBare bool   `json:"is_bare"`
}

// RepositoryValidation is the result of probing a path for a git repository.
type RepositoryValidation struct {
	Valid  bool   `json:"valid"`
	IsBare bool   `json:"is_bare"`
	Error  string `json:"error,omitempty"`
}

// SelectRepository opens a native directory picker and validates the chosen
// directory as a git repository. Returns nil when the user cancels. The
// repository is described, not opened; callers follow up with
// OpenRepository.
func (a *App) SelectRepository() (*RepositoryInfo, error) {
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errors.New("app context is not ready")
	}
	dir, err := runtimeOpenDirectoryDialogFn(ctx, runtime.OpenDialogOptions{
		Title: "Select Git Repository",
	})
	if err != nil {
		return nil, err
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil // dialog cancelled
	}
	info, _, err := a.resolveRepository(dir)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ValidateRepository probes whether path is a usable git repository without
// opening it. Validation failures are reported in the result, not as errors.
func (a *App) ValidateRepository(path string) RepositoryValidation {
	path = strings.TrimSpace(path)
	if path == "" {
		return RepositoryValidation{Error: "path is required"}
	}
	if !gitpkg.IsGitRepository(path) {
		return RepositoryValidation{Error: fmt.Sprintf("not a git repository: %s", path)}
	}
	repo, err := gitpkg.Open(path)
	if err != nil {
		return RepositoryValidation{Error: err.Error()}
	}
	bare, err := repo.IsBare()
	if err != nil {
		return RepositoryValidation{Error: err.Error()}
	}
	return RepositoryValidation{Valid: true, IsBare: bare}
}

// OpenRepository opens the repository at path, makes it the active
// repository, records it in the recent list, and starts watching its git
// metadata for changes.
func (a *App) OpenRepository(path string) (RepositoryInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return RepositoryInfo{}, errors.New("repository path is required")
	}

	info, repo, err := a.resolveRepository(path)
	if err != nil {
		return RepositoryInfo{}, err
	}

	a.installRepo(repo)
	a.recordRecentRepository(info)

	a.emitRuntimeEvent(eventRepoOpened, info)
	return info, nil
}

// resolveRepository validates path as a git repository, normalizes it to the
// repository root, and describes it. The returned handle is open but not yet
// installed as the active repository.
func (a *App) resolveRepository(path string) (RepositoryInfo, *gitpkg.Repository, error) {
	if !gitpkg.IsGitRepository(path) {
		return RepositoryInfo{}, nil, fmt.Errorf("not a git repository: %s", path)
	}

	// Normalize to the repository root so nested paths open the same repo.
	rootPath, err := gitpkg.FindRepoRoot(path)
	if err != nil {
		// Bare repositories have no worktree root; fall back to the given path.
		slog.Debug("[DEBUG-GIT] rev-parse --show-toplevel failed, using given path",
			"path", path, "error", err)
		rootPath = path
	}

	repo, err := gitpkg.Open(rootPath)
	if err != nil {
		return RepositoryInfo{}, nil, fmt.Errorf("failed to open repository: %w", err)
	}
	bare, err := repo.IsBare()
	if err != nil {
		return RepositoryInfo{}, nil, err
	}

	info := RepositoryInfo{
		Path:   rootPath,
		Name:   filepath.Base(rootPath),
		IsBare: bare,
	}
	return info, repo, nil
}

// CloseRepository clears the active repository and stops its watcher.
// Closing when nothing is open is a no-op.
func (a *App) CloseRepository() {
	a.repoMu.Lock()
	hadRepo := a.repo != nil
	a.repo = nil
	w := a.repoWatcher
	a.repoWatcher = nil
	a.repoMu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			slog.Warn("[WARN-WATCH] watcher close failed", "error", err)
		}
	}
	if hadRepo {
		a.emitRuntimeEvent(eventRepoClosed, nil)
	}
}

// RecentRepositories returns the recently opened repositories, most recent
// first. Returns an empty list when the store is unavailable.
func (a *App) RecentRepositories() []store.RecentRepository {
	recent, err := a.requireStore()
	if err != nil {
		return []store.RecentRepository{}
	}
	limit := a.getConfigSnapshot().RecentLimit
	repos, listErr := recent.List(a.storeContext(), limit)
	if listErr != nil {
		slog.Warn("[WARN-STORE] failed to list recent repositories", "error", listErr)
		return []store.RecentRepository{}
	}
	return repos
}

// RemoveRecentRepository deletes a path from the recent list.
func (a *App) RemoveRecentRepository(path string) error {
	recent, err := a.requireStore()
	if err != nil {
		return err
	}
	return recent.Remove(a.storeContext(), path)
}

// installRepo swaps the active repository and restarts the metadata watcher.
func (a *App) installRepo(repo *gitpkg.Repository) {
	newWatcher := a.startRepoWatcher(repo)

	a.repoMu.Lock()
	oldWatcher := a.repoWatcher
	a.repo = repo
	a.repoWatcher = newWatcher
	a.repoMu.Unlock()

	if oldWatcher != nil {
		if err := oldWatcher.Close(); err != nil {
			slog.Warn("[WARN-WATCH] previous watcher close failed", "error", err)
		}
	}
}

// startRepoWatcher starts the git metadata watcher for repo. Watcher
// failures are non-fatal: the UI still works, it just does not auto-refresh.
func (a *App) startRepoWatcher(repo *gitpkg.Repository) *watcher.Watcher {
	gitDir, err := repo.CommonDir()
	if err != nil {
		slog.Warn("[WARN-WATCH] cannot resolve git dir, auto-refresh disabled",
			"path", repo.Path(), "error", err)
		return nil
	}
	// git reports the common dir relative to the worktree (".git") for
	// ordinary repositories.
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repo.Path(), gitDir)
	}
	w, err := watchRepoFn(gitDir, a.emitRepoChanged)
	if err != nil {
		slog.Warn("[WARN-WATCH] failed to start repository watcher, auto-refresh disabled",
			"gitDir", gitDir, "error", err)
		return nil
	}
	return w
}

func (a *App) stopRepoWatcher() {
	a.repoMu.Lock()
	w := a.repoWatcher
	a.repoWatcher = nil
	a.repoMu.Unlock()
	if w != nil {
		if err := w.Close(); err != nil {
			slog.Warn("[WARN-WATCH] watcher close failed during shutdown", "error", err)
		}
	}
}

// recordRecentRepository is best effort; failures are logged, not surfaced.
func (a *App) recordRecentRepository(info RepositoryInfo) {
	recent, err := a.requireStore()
	if err != nil {
		return
	}
	limit := a.getConfigSnapshot().RecentLimit
	touchErr := recent.Touch(a.storeContext(), store.RecentRepository{
		Path:         info.Path,
		Name:         info.Name,
		IsBare:       info.IsBare,
		LastOpenedAt: time.Now(),
	}, limit)
	if touchErr != nil {
		slog.Warn("[WARN-STORE] failed to record recent repository",
			"path", info.Path, "error", touchErr)
	}
}

// storeContext returns the runtime context for store queries, falling back
// to Background before startup completes (unit tests, early calls).
func (a *App) storeContext() context.Context {
	if ctx := a.runtimeContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
