package main

import (
	"context"
	"log/slog"
)

// Event names emitted to the frontend.
const (
	eventRepoChanged       = "repo:changed"
	eventRepoOpened        = "repo:opened"
	eventRepoClosed        = "repo:closed"
	eventConfigUpdated     = "config:updated"
	eventConfigLoadFailed  = "config:load-failed"
	eventGitOpOutput       = "gitop:output"
	eventGitOpFinished     = "gitop:finished"
	eventSessionLogUpdated = "app:session-log-updated"
)

// emitRuntimeEvent emits via the app context and delegates to
// emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// emitRepoChanged notifies the frontend that the open repository's git
// metadata changed (branch switch, worktree add/remove, commits). The
// frontend re-fetches worktree and branch listings on this event.
func (a *App) emitRepoChanged() {
	if a.shuttingDown.Load() {
		return
	}
	repoPath := ""
	a.repoMu.RLock()
	if a.repo != nil {
		repoPath = a.repo.Path()
	}
	a.repoMu.RUnlock()
	if repoPath == "" {
		return
	}
	slog.Debug("[EVENT] repository metadata changed", "path", repoPath)
	a.emitRuntimeEvent(eventRepoChanged, map[string]string{"path": repoPath})
}
