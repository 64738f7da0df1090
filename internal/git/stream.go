package git

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/ManMan88/wtview/internal/procutil"
)

// OutputFunc receives chunks of combined stdout/stderr output from a
// streaming git command. Chunks are delivered in order; the callback must not
// retain the slice after returning.
type OutputFunc func(chunk []byte)

// forwardWriter adapts OutputFunc to io.Writer. Writes from stdout and
// stderr are serialized so interleaved progress output stays ordered.
type forwardWriter struct {
	mu       sync.Mutex
	onOutput OutputFunc
}

func (w *forwardWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onOutput != nil && len(p) > 0 {
		w.onOutput(p)
	}
	return len(p), nil
}

// runGitStreaming executes a git command, forwarding combined output to
// onOutput as it arrives. Used for remote operations where progress matters
// (fetch, pull, push). The command is killed when ctx is cancelled.
//
// Unlike runGitCLI there is no index.lock retry: remote operations are
// user-initiated and long-running, so surfacing the conflict immediately
// beats silently re-running a fetch.
func (r *Repository) runGitStreaming(ctx context.Context, onOutput OutputFunc, args ...string) error {
	if len(args) == 0 {
		return fmt.Errorf("git: no command specified")
	}

	start := time.Now()
	defer func() {
		slog.Debug("[DEBUG-GIT] streaming git command completed",
			"dir", r.path,
			"args", args,
			"duration_ms", time.Since(start).Milliseconds())
	}()

	if err := acquireGitStreamSemaphore(ctx); err != nil {
		return fmt.Errorf("git %s: %w", args[0], err)
	}
	defer releaseGitStreamSemaphore()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	procutil.HideWindow(cmd)

	out := &forwardWriter{onOutput: onOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("git %s: %w", args[0], ctxErr)
		}
		return fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return nil
}

// FetchStream fetches all remotes, streaming progress output to onOutput.
func (r *Repository) FetchStream(ctx context.Context, onOutput OutputFunc) error {
	return r.runGitStreaming(ctx, onOutput, "fetch", "--all", "--progress")
}

// PullStream pulls the current branch, streaming progress output to onOutput.
func (r *Repository) PullStream(ctx context.Context, onOutput OutputFunc) error {
	return r.runGitStreaming(ctx, onOutput, "pull", "--progress")
}

// PushStream pushes the current branch, streaming progress output to
// onOutput. When the branch has no upstream, an upstream on origin is
// configured so subsequent pulls work.
func (r *Repository) PushStream(ctx context.Context, onOutput OutputFunc) error {
	if !r.hasUpstream() {
		branch, branchErr := r.CurrentBranch()
		if branchErr != nil || branch == "" {
			return fmt.Errorf("push: cannot resolve current branch: %v", branchErr)
		}
		return r.runGitStreaming(ctx, onOutput, "push", "--progress", "--set-upstream", "origin", branch)
	}
	return r.runGitStreaming(ctx, onOutput, "push", "--progress")
}

// hasUpstream reports whether the current branch has an upstream tracking
// branch configured.
func (r *Repository) hasUpstream() bool {
	_, err := r.runGitCommand("rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	return err == nil
}
