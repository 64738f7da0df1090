// Package watcher observes a repository's git metadata and reports changes
// so the UI can refresh worktree and branch listings without polling.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManMan88/wtview/internal/workerutil"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the event bursts git produces during a single
// operation (a checkout touches HEAD, the index, and several refs).
const debounceDelay = 250 * time.Millisecond

// Test seam; tests override to inject watcher construction failures.
var newFsnotifyWatcherFn = fsnotify.NewWatcher

// Watcher monitors one repository's git directory. Create with Watch, stop
// with Close. The callback runs on an internal goroutine.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    atomic.Bool
	closeOnce sync.Once
}

// Watch starts watching the git metadata under gitDir (the repository's
// resolved common dir). onChange is invoked, debounced, whenever HEAD, refs,
// or the worktree registry change.
func Watch(gitDir string, onChange func()) (*Watcher, error) {
	gitDir = strings.TrimSpace(gitDir)
	if gitDir == "" {
		return nil, errors.New("watch: git dir required")
	}
	if onChange == nil {
		return nil, errors.New("watch: onChange callback required")
	}

	fsw, err := newFsnotifyWatcherFn()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	// HEAD and packed-refs live directly in gitDir. refs/ covers branch
	// updates; worktrees/ covers add/remove/lock of linked worktrees.
	// fsnotify does not recurse, so watch each level that matters.
	watchDirs := []string{
		gitDir,
		filepath.Join(gitDir, "refs"),
		filepath.Join(gitDir, "refs", "heads"),
		filepath.Join(gitDir, "worktrees"),
	}
	watched := 0
	for _, dir := range watchDirs {
		if err := fsw.Add(dir); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			slog.Debug("[DEBUG-WATCH] skipping unwatchable dir", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		fsw.Close()
		return nil, fmt.Errorf("watch: no watchable git metadata under %q", gitDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsw:      fsw,
		onChange: onChange,
		cancel:   cancel,
	}
	// A panic in the event loop would silently kill auto-refresh for the
	// rest of the session; restart it instead.
	workerutil.RunWithPanicRecovery(ctx, "git-metadata-watcher", &w.wg, w.run, workerutil.RecoveryOptions{
		MaxRetries: 3,
		IsShutdown: w.closed.Load,
	})

	slog.Debug("[DEBUG-WATCH] watching git metadata", "gitDir", gitDir, "dirs", watched)
	return w, nil
}

// Close stops the watcher and waits for the event goroutine to exit. Safe to
// call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		w.cancel()
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run(ctx context.Context) {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !relevantEvent(event) {
				continue
			}
			slog.Debug("[DEBUG-WATCH] git metadata changed", "path", event.Name, "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.onChange)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-WATCH] watcher error", "error", err)
		}
	}
}

// relevantEvent filters out noise like git's own lock and temp files, which
// would otherwise fire a refresh for every command wtview itself runs.
func relevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasSuffix(base, ".lock") || strings.HasPrefix(base, ".") {
		return false
	}
	switch base {
	case "HEAD", "packed-refs", "ORIG_HEAD", "FETCH_HEAD":
		return true
	}
	// Anything under refs/ or worktrees/ counts.
	dir := filepath.ToSlash(filepath.Dir(event.Name))
	return strings.Contains(dir, "/refs") || strings.Contains(dir, "/worktrees")
}
