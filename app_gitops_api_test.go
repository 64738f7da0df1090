package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ManMan88/wtview/internal/testutil"
)

// setupClonedRepoApp opens a clone backed by a local bare remote so fetch,
// pull, and push work without network access.
func setupClonedRepoApp(t *testing.T) (*App, *eventRecorder, string, string) {
	t.Helper()
	app, rec := setupTestApp(t)

	seed := testutil.CreateTempGitRepo(t)
	bareDir := filepath.Join(testutil.ResolvePath(t.TempDir()), "origin.git")
	testutil.RunGit(t, seed, "clone", "--bare", seed, bareDir)

	cloneDir := filepath.Join(testutil.ResolvePath(t.TempDir()), "clone")
	testutil.RunGit(t, seed, "clone", bareDir, cloneDir)
	testutil.RunGit(t, cloneDir, "config", "user.email", "test@test.com")
	testutil.RunGit(t, cloneDir, "config", "user.name", "Test")

	if _, err := app.OpenRepository(cloneDir); err != nil {
		t.Fatalf("OpenRepository() error = %v", err)
	}
	return app, rec, cloneDir, bareDir
}

func finishedEvent(t *testing.T, rec *eventRecorder) GitOpFinishedEvent {
	t.Helper()
	event, ok := rec.find(eventGitOpFinished)
	if !ok {
		t.Fatal("gitop:finished event not emitted")
	}
	if len(event.data) == 0 {
		t.Fatal("gitop:finished event has no payload")
	}
	payload, ok := event.data[0].(GitOpFinishedEvent)
	if !ok {
		t.Fatalf("gitop:finished payload type = %T", event.data[0])
	}
	return payload
}

func TestFetchLifecycle(t *testing.T) {
	app, rec, _, _ := setupClonedRepoApp(t)

	origNewOpID := newOpIDFn
	t.Cleanup(func() { newOpIDFn = origNewOpID })
	newOpIDFn = func() string { return "op-fetch-1" }

	handle, err := app.Fetch()
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if handle.OpID != "op-fetch-1" || handle.Kind != "fetch" {
		t.Errorf("handle = %+v", handle)
	}

	app.bgWG.Wait()

	payload := finishedEvent(t, rec)
	if payload.OpID != "op-fetch-1" {
		t.Errorf("finished OpID = %q, want %q", payload.OpID, "op-fetch-1")
	}
	if !payload.Success {
		t.Errorf("fetch reported failure: %s", payload.Error)
	}

	// The operation must be deregistered once finished.
	if err := app.CancelGitOperation("op-fetch-1"); err == nil {
		t.Error("CancelGitOperation() after completion should fail")
	}
}

func TestPullIntegratesUpstreamCommit(t *testing.T) {
	app, rec, cloneDir, bareDir := setupClonedRepoApp(t)

	// Publish a commit from a second clone, then pull it into the first.
	otherDir := filepath.Join(testutil.ResolvePath(t.TempDir()), "other")
	testutil.RunGit(t, cloneDir, "clone", bareDir, otherDir)
	testutil.RunGit(t, otherDir, "config", "user.email", "test@test.com")
	testutil.RunGit(t, otherDir, "config", "user.name", "Test")
	testutil.WriteAndCommit(t, otherDir, "shared.txt", "s", "shared commit")
	testutil.RunGit(t, otherDir, "push", "origin", "main")

	if _, err := app.Pull(); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	app.bgWG.Wait()

	if payload := finishedEvent(t, rec); !payload.Success {
		t.Fatalf("pull reported failure: %s", payload.Error)
	}
	out := testutil.RunGit(t, cloneDir, "log", "-1", "--format=%s")
	if strings.TrimSpace(out) != "shared commit" {
		t.Errorf("HEAD subject after pull = %q, want %q", strings.TrimSpace(out), "shared commit")
	}
}

func TestPushPublishesLocalCommit(t *testing.T) {
	app, rec, cloneDir, bareDir := setupClonedRepoApp(t)
	testutil.WriteAndCommit(t, cloneDir, "local.txt", "l", "local commit")

	if _, err := app.Push(); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	app.bgWG.Wait()

	if payload := finishedEvent(t, rec); !payload.Success {
		t.Fatalf("push reported failure: %s", payload.Error)
	}
	out := testutil.RunGit(t, bareDir, "log", "-1", "--format=%s", "main")
	if strings.TrimSpace(out) != "local commit" {
		t.Errorf("remote subject after push = %q, want %q", strings.TrimSpace(out), "local commit")
	}
}

func TestGitOperationFailureReported(t *testing.T) {
	app, rec := setupTestApp(t)
	// A repository without any remote makes pull fail deterministically.
	repoDir := testutil.CreateTempGitRepo(t)
	if _, err := app.OpenRepository(repoDir); err != nil {
		t.Fatal(err)
	}

	if _, err := app.Pull(); err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	app.bgWG.Wait()

	payload := finishedEvent(t, rec)
	if payload.Success {
		t.Error("pull without remote reported success")
	}
	if payload.Error == "" {
		t.Error("failed operation carries no error message")
	}
}

func TestStartGitOperationRequiresRepo(t *testing.T) {
	app, _ := setupTestApp(t)

	if _, err := app.Fetch(); err == nil {
		t.Error("Fetch() without open repository should fail")
	}
}

func TestCancelGitOperationUnknown(t *testing.T) {
	app, _ := setupTestApp(t)

	if err := app.CancelGitOperation("missing"); err == nil {
		t.Error("CancelGitOperation() for unknown ID should fail")
	}
}

func TestCancelAllGitOperations(t *testing.T) {
	app, _ := setupTestApp(t)

	cancelled := map[string]bool{}
	for _, id := range []string{"a", "b"} {
		id := id
		app.gitOps[id] = func() { cancelled[id] = true }
	}

	app.cancelAllGitOperations()

	if !cancelled["a"] || !cancelled["b"] {
		t.Errorf("cancelled = %v, want both operations cancelled", cancelled)
	}
}

func TestForwardGitOpOutputFallback(t *testing.T) {
	app, rec := setupTestApp(t)

	// Without a WebSocket hub, chunks fall back to runtime events.
	app.forwardGitOpOutput("op-x", []byte("remote: done"))
	app.forwardGitOpOutput("op-x", nil)

	event, ok := rec.find(eventGitOpOutput)
	if !ok {
		t.Fatal("gitop:output fallback event not emitted")
	}
	payload, ok := event.data[0].(gitOpOutputEvent)
	if !ok {
		t.Fatalf("gitop:output payload type = %T", event.data[0])
	}
	if payload.OpID != "op-x" || payload.Data != "remote: done" {
		t.Errorf("payload = %+v", payload)
	}
	if rec.count(eventGitOpOutput) != 1 {
		t.Errorf("empty chunk emitted an event, count = %d", rec.count(eventGitOpOutput))
	}
}

func TestStartGitOperationDuringShutdown(t *testing.T) {
	app, _, _, _ := setupClonedRepoApp(t)
	app.shuttingDown.Store(true)

	if _, err := app.Fetch(); err == nil {
		t.Error("Fetch() during shutdown should fail")
	}
}
