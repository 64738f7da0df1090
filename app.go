package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManMan88/wtview/internal/config"
	gitpkg "github.com/ManMan88/wtview/internal/git"
	"github.com/ManMan88/wtview/internal/ipc"
	"github.com/ManMan88/wtview/internal/sessionlog"
	"github.com/ManMan88/wtview/internal/store"
	"github.com/ManMan88/wtview/internal/watcher"
	"github.com/ManMan88/wtview/internal/wsserver"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: do not assume ordering across these.
	//   repoMu, gitOpsMu, sessionLogMu, startupWarnMu, ctxMu
	cfgMu              sync.RWMutex
	cfgSaveMu          sync.Mutex
	configEventVersion atomic.Uint64
	cfg                config.Config
	configPath         string
	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// Open repository state. repo and repoWatcher change together under
	// repoMu when a repository is opened or closed.
	repoMu      sync.RWMutex
	repo        *gitpkg.Repository
	repoWatcher *watcher.Watcher

	// recent holds the recently opened repositories database. Set once during
	// startup; nil if the store failed to open (recent list degrades to empty).
	recent *store.Store

	// activation listens for window-activation requests from subsequent
	// launches that lost the single-instance race. Set once during startup;
	// nil if the listener failed to start.
	activation *ipc.ActivationServer

	// wsHub provides a WebSocket binary stream for git operation output.
	// Set once during startup (single-goroutine); nil if the WebSocket server
	// fails to start. Safe without mutex: written once before any reader
	// goroutine starts, never reassigned.
	wsHub *wsserver.Hub

	// In-flight remote git operations keyed by operation ID.
	gitOpsMu sync.Mutex
	gitOps   map[string]context.CancelFunc

	// Session log state (captures Warn/Error level records).
	// sessionLogLastEmit throttles app:session-log-updated emissions to avoid
	// saturating Wails IPC under bursty logging.
	sessionLogMu       sync.Mutex
	sessionLogEntries  *sessionlog.Buffer
	sessionLogLastEmit time.Time

	shuttingDown atomic.Bool // set true at the start of shutdown()
	bgWG         sync.WaitGroup
}

// NewApp creates the app service.
func NewApp() *App {
	return &App{
		gitOps:            map[string]context.CancelFunc{},
		sessionLogEntries: sessionlog.NewBuffer(sessionlog.DefaultCapacity),
	}
}

// GetWebSocketURL returns the WebSocket endpoint URL for the git operation
// output stream. The frontend calls this on mount to establish a binary
// channel that bypasses Wails IPC overhead while remote operations stream
// progress. Returns empty string if the WebSocket server is not available.
func (a *App) GetWebSocketURL() string {
	if a.wsHub == nil {
		slog.Debug("[DEBUG-WS] wsHub is nil, WebSocket URL unavailable")
		return ""
	}
	return a.wsHub.URL()
}
