package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"testing"

	"github.com/ManMan88/wtview/internal/config"
	"github.com/ManMan88/wtview/internal/store"
	"github.com/ManMan88/wtview/internal/testutil"
	"github.com/ManMan88/wtview/internal/watcher"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type testRuntimeLogger struct{}

func (testRuntimeLogger) Warningf(_ context.Context, message string, args ...interface{}) {
	slog.Warn(formatRuntimeLogMessage(message, args...))
}

func (testRuntimeLogger) Infof(_ context.Context, message string, args ...interface{}) {
	slog.Info(formatRuntimeLogMessage(message, args...))
}

func (testRuntimeLogger) Errorf(_ context.Context, message string, args ...interface{}) {
	slog.Error(formatRuntimeLogMessage(message, args...))
}

type recordedEvent struct {
	name string
	data []interface{}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) record(_ context.Context, name string, data ...interface{}) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{name: name, data: data})
	r.mu.Unlock()
}

// find returns the last event with the given name.
func (r *eventRecorder) find(name string) (recordedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i], true
		}
	}
	return recordedEvent{}, false
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.name == name {
			n++
		}
	}
	return n
}

// testActivationEndpoint returns a per-test endpoint so startup tests never
// collide on the per-user default.
func testActivationEndpoint(t *testing.T) string {
	t.Helper()
	if goruntime.GOOS == "windows" {
		return `\\.\pipe\wtview-test-` + strings.ReplaceAll(t.Name(), "/", "_")
	}
	return filepath.Join(t.TempDir(), "wtview-test.sock")
}

// setupTestApp builds an App with a runtime context, captured events, and
// the repository watcher disabled. Seams are restored on cleanup.
func setupTestApp(t *testing.T) (*App, *eventRecorder) {
	t.Helper()
	t.Setenv("WTVIEW_IPC", testActivationEndpoint(t))

	origEmit := runtimeEventsEmitFn
	origWatch := watchRepoFn
	origLogger := runtimeLogger
	t.Cleanup(func() {
		runtimeEventsEmitFn = origEmit
		watchRepoFn = origWatch
		runtimeLogger = origLogger
	})

	rec := &eventRecorder{}
	runtimeEventsEmitFn = rec.record
	watchRepoFn = func(string, func()) (*watcher.Watcher, error) {
		return nil, nil
	}
	// Wails runtime logging requires the real application context; tests run
	// against context.Background, so route through the nil-ctx slog fallback.
	runtimeLogger = testRuntimeLogger{}

	app := NewApp()
	app.setRuntimeContext(context.Background())
	app.setConfigSnapshot(config.DefaultConfig())
	return app, rec
}

// withTestStore attaches a temporary recent-repository store to app.
func withTestStore(t *testing.T, app *App) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "recent.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	app.recent = s
}

func TestValidateRepository(t *testing.T) {
	app, _ := setupTestApp(t)
	repoDir := testutil.CreateTempGitRepo(t)

	t.Run("valid repository", func(t *testing.T) {
		result := app.ValidateRepository(repoDir)
		if !result.Valid {
			t.Errorf("ValidateRepository() = %+v, want valid", result)
		}
		if result.IsBare {
			t.Error("normal repository reported bare")
		}
	})

	t.Run("empty path", func(t *testing.T) {
		result := app.ValidateRepository("  ")
		if result.Valid || result.Error == "" {
			t.Errorf("ValidateRepository() = %+v, want invalid with message", result)
		}
	})

	t.Run("non-repository", func(t *testing.T) {
		result := app.ValidateRepository(t.TempDir())
		if result.Valid || result.Error == "" {
			t.Errorf("ValidateRepository() = %+v, want invalid with message", result)
		}
	})
}

func TestOpenRepository(t *testing.T) {
	app, rec := setupTestApp(t)
	withTestStore(t, app)
	repoDir := testutil.CreateTempGitRepo(t)

	info, err := app.OpenRepository(repoDir)
	if err != nil {
		t.Fatalf("OpenRepository() error = %v", err)
	}
	if info.Path != repoDir {
		t.Errorf("info.Path = %q, want %q", info.Path, repoDir)
	}
	if info.Name != filepath.Base(repoDir) {
		t.Errorf("info.Name = %q, want %q", info.Name, filepath.Base(repoDir))
	}
	if info.IsBare {
		t.Error("normal repository reported bare")
	}
	if _, err := app.requireRepo(); err != nil {
		t.Errorf("requireRepo() after open error = %v", err)
	}
	if _, ok := rec.find(eventRepoOpened); !ok {
		t.Error("repo:opened event not emitted")
	}

	recent := app.RecentRepositories()
	if len(recent) != 1 || recent[0].Path != repoDir {
		t.Errorf("RecentRepositories() = %+v, want single entry for %q", recent, repoDir)
	}
}

func TestOpenRepositoryNormalizesNestedPath(t *testing.T) {
	app, _ := setupTestApp(t)
	repoDir := testutil.CreateTempGitRepo(t)
	testutil.WriteAndCommit(t, repoDir, "sub/file.txt", "x", "add sub")

	info, err := app.OpenRepository(filepath.Join(repoDir, "sub"))
	if err != nil {
		t.Fatalf("OpenRepository() error = %v", err)
	}
	if testutil.ResolvePath(info.Path) != repoDir {
		t.Errorf("info.Path = %q, want repository root %q", info.Path, repoDir)
	}
}

func TestOpenRepositoryFailures(t *testing.T) {
	app, _ := setupTestApp(t)

	if _, err := app.OpenRepository(""); err == nil {
		t.Error("OpenRepository(\"\") should fail")
	}
	if _, err := app.OpenRepository(t.TempDir()); err == nil {
		t.Error("OpenRepository() on non-repository should fail")
	}
}

func TestCloseRepository(t *testing.T) {
	app, rec := setupTestApp(t)
	repoDir := testutil.CreateTempGitRepo(t)

	if _, err := app.OpenRepository(repoDir); err != nil {
		t.Fatal(err)
	}
	app.CloseRepository()

	if _, err := app.requireRepo(); err == nil {
		t.Error("repository still open after close")
	}
	if _, ok := rec.find(eventRepoClosed); !ok {
		t.Error("repo:closed event not emitted")
	}

	// Closing again is a no-op and must not emit a second event.
	app.CloseRepository()
	if got := rec.count(eventRepoClosed); got != 1 {
		t.Errorf("repo:closed emitted %d times, want 1", got)
	}
}

func TestSelectRepository(t *testing.T) {
	app, _ := setupTestApp(t)

	origDialog := runtimeOpenDirectoryDialogFn
	t.Cleanup(func() { runtimeOpenDirectoryDialogFn = origDialog })

	t.Run("valid selection is described", func(t *testing.T) {
		repoDir := testutil.CreateTempGitRepo(t)
		runtimeOpenDirectoryDialogFn = func(_ context.Context, _ runtime.OpenDialogOptions) (string, error) {
			return "  " + repoDir + "  ", nil
		}
		info, err := app.SelectRepository()
		if err != nil {
			t.Fatalf("SelectRepository() error = %v", err)
		}
		if info == nil {
			t.Fatal("SelectRepository() = nil for a valid selection")
		}
		if info.Path != repoDir {
			t.Errorf("Path = %q, want %q", info.Path, repoDir)
		}
		if info.Name != filepath.Base(repoDir) {
			t.Errorf("Name = %q, want %q", info.Name, filepath.Base(repoDir))
		}
		if info.IsBare {
			t.Error("IsBare = true for a working repository")
		}
		// Selection only describes; it must not open the repository.
		if _, err := app.requireRepo(); err == nil {
			t.Error("SelectRepository() opened the repository")
		}
	})

	t.Run("non-repository selection fails", func(t *testing.T) {
		dir := t.TempDir()
		runtimeOpenDirectoryDialogFn = func(_ context.Context, _ runtime.OpenDialogOptions) (string, error) {
			return dir, nil
		}
		if _, err := app.SelectRepository(); err == nil {
			t.Error("SelectRepository() should reject a non-repository directory")
		}
	})

	t.Run("cancel returns nil", func(t *testing.T) {
		runtimeOpenDirectoryDialogFn = func(_ context.Context, _ runtime.OpenDialogOptions) (string, error) {
			return "", nil
		}
		info, err := app.SelectRepository()
		if err != nil || info != nil {
			t.Errorf("SelectRepository() = (%+v, %v), want (nil, nil)", info, err)
		}
	})

	t.Run("dialog error propagates", func(t *testing.T) {
		runtimeOpenDirectoryDialogFn = func(_ context.Context, _ runtime.OpenDialogOptions) (string, error) {
			return "", errors.New("dialog failed")
		}
		if _, err := app.SelectRepository(); err == nil {
			t.Error("SelectRepository() should propagate dialog errors")
		}
	})
}

func TestRecentRepositoriesWithoutStore(t *testing.T) {
	app, _ := setupTestApp(t)

	if got := app.RecentRepositories(); len(got) != 0 {
		t.Errorf("RecentRepositories() without store = %v, want empty", got)
	}
	if err := app.RemoveRecentRepository("/somewhere"); err == nil {
		t.Error("RemoveRecentRepository() without store should fail")
	}
}

func TestRemoveRecentRepository(t *testing.T) {
	app, _ := setupTestApp(t)
	withTestStore(t, app)
	repoDir := testutil.CreateTempGitRepo(t)

	if _, err := app.OpenRepository(repoDir); err != nil {
		t.Fatal(err)
	}
	if err := app.RemoveRecentRepository(repoDir); err != nil {
		t.Fatalf("RemoveRecentRepository() error = %v", err)
	}
	if got := app.RecentRepositories(); len(got) != 0 {
		t.Errorf("RecentRepositories() after remove = %v, want empty", got)
	}
}
