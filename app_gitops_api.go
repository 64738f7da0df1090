package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gitpkg "github.com/ManMan88/wtview/internal/git"

	"github.com/google/uuid"
)

// Remote operation kinds reported in GitOpHandle.Kind.
const (
	gitOpFetch = "fetch"
	gitOpPull  = "pull"
	gitOpPush  = "push"
)

// gitOpTimeout bounds a single remote operation. Slow links are tolerated;
// a hung credential prompt is not.
const gitOpTimeout = 10 * time.Minute

// newOpIDFn is a test seam for operation ID generation.
var newOpIDFn = uuid.NewString

// GitOpHandle identifies a started remote operation. The frontend
// subscribes to the WebSocket stream with OpID to receive progress output.
type GitOpHandle struct {
	OpID string `json:"op_id"`
	Kind string `json:"kind"`
}

// GitOpFinishedEvent is the payload of the gitop:finished event.
type GitOpFinishedEvent struct {
	OpID       string `json:"op_id"`
	Kind       string `json:"kind"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// gitOpOutputEvent is the Wails fallback payload carrying one output chunk
// when no WebSocket client is connected.
type gitOpOutputEvent struct {
	OpID string `json:"op_id"`
	Data string `json:"data"`
}

// Fetch starts fetching all remotes of the open repository in the
// background. Progress streams over the WebSocket channel keyed by the
// returned operation ID; completion is announced via gitop:finished.
func (a *App) Fetch() (GitOpHandle, error) {
	return a.startGitOperation(gitOpFetch, func(repo *gitpkg.Repository, ctx context.Context, onOutput gitpkg.OutputFunc) error {
		return repo.FetchStream(ctx, onOutput)
	})
}

// Pull starts pulling the current branch of the open repository.
func (a *App) Pull() (GitOpHandle, error) {
	return a.startGitOperation(gitOpPull, func(repo *gitpkg.Repository, ctx context.Context, onOutput gitpkg.OutputFunc) error {
		return repo.PullStream(ctx, onOutput)
	})
}

// Push starts pushing the current branch of the open repository, setting an
// upstream on origin when none is configured.
func (a *App) Push() (GitOpHandle, error) {
	return a.startGitOperation(gitOpPush, func(repo *gitpkg.Repository, ctx context.Context, onOutput gitpkg.OutputFunc) error {
		return repo.PushStream(ctx, onOutput)
	})
}

// CancelGitOperation cancels a running remote operation. Returns an error
// when the operation is unknown (already finished or never started).
func (a *App) CancelGitOperation(opID string) error {
	a.gitOpsMu.Lock()
	cancel, ok := a.gitOps[opID]
	a.gitOpsMu.Unlock()
	if !ok {
		return fmt.Errorf("unknown git operation: %s", opID)
	}
	cancel()
	return nil
}

type gitOpRunFunc func(repo *gitpkg.Repository, ctx context.Context, onOutput gitpkg.OutputFunc) error

func (a *App) startGitOperation(kind string, run gitOpRunFunc) (GitOpHandle, error) {
	repo, err := a.requireRepo()
	if err != nil {
		return GitOpHandle{}, err
	}
	if a.shuttingDown.Load() {
		return GitOpHandle{}, errors.New("application is shutting down")
	}

	handle := GitOpHandle{OpID: newOpIDFn(), Kind: kind}

	parentCtx := context.Background()
	if appCtx := a.runtimeContext(); appCtx != nil {
		parentCtx = appCtx
	}
	opCtx, cancel := context.WithTimeout(parentCtx, gitOpTimeout)

	a.gitOpsMu.Lock()
	a.gitOps[handle.OpID] = cancel
	a.gitOpsMu.Unlock()

	slog.Info("[DEBUG-GIT] remote operation started",
		"kind", kind, "opId", handle.OpID, "repo", repo.Path())

	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		defer cancel()
		defer func() {
			recoverBackgroundPanic("git-"+kind, recover())
		}()

		start := time.Now()
		runErr := run(repo, opCtx, func(chunk []byte) {
			a.forwardGitOpOutput(handle.OpID, chunk)
		})
		a.finishGitOperation(handle, runErr, time.Since(start))
	}()

	return handle, nil
}

// forwardGitOpOutput streams one output chunk to the frontend, preferring
// the WebSocket binary channel and falling back to a Wails event.
func (a *App) forwardGitOpOutput(opID string, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if a.wsHub != nil && a.wsHub.HasActiveConnection() {
		a.wsHub.BroadcastOpOutput(opID, chunk)
		return
	}
	a.emitRuntimeEvent(eventGitOpOutput, gitOpOutputEvent{
		OpID: opID,
		Data: string(chunk),
	})
}

func (a *App) finishGitOperation(handle GitOpHandle, runErr error, elapsed time.Duration) {
	a.gitOpsMu.Lock()
	delete(a.gitOps, handle.OpID)
	a.gitOpsMu.Unlock()

	if a.wsHub != nil {
		a.wsHub.Unsubscribe(handle.OpID)
	}

	event := GitOpFinishedEvent{
		OpID:       handle.OpID,
		Kind:       handle.Kind,
		Success:    runErr == nil,
		DurationMs: elapsed.Milliseconds(),
	}
	if runErr != nil {
		event.Error = runErr.Error()
		slog.Warn("[WARN-GIT] remote operation failed",
			"kind", handle.Kind, "opId", handle.OpID, "error", runErr)
	} else {
		slog.Info("[DEBUG-GIT] remote operation finished",
			"kind", handle.Kind, "opId", handle.OpID,
			"duration_ms", event.DurationMs)
	}
	a.emitRuntimeEvent(eventGitOpFinished, event)
}

// cancelAllGitOperations cancels every in-flight remote operation. Called
// during shutdown before waiting on the background WaitGroup.
func (a *App) cancelAllGitOperations() {
	a.gitOpsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(a.gitOps))
	for _, cancel := range a.gitOps {
		cancels = append(cancels, cancel)
	}
	a.gitOpsMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}
