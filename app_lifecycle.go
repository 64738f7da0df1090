package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ManMan88/wtview/internal/config"
	"github.com/ManMan88/wtview/internal/ipc"
	"github.com/ManMan88/wtview/internal/store"
	"github.com/ManMan88/wtview/internal/wsserver"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	runtime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                           = runtime.EventsEmit
	runtimeOpenDirectoryDialogFn                  = runtime.OpenDirectoryDialog
	runtimeWindowShowFn                           = runtime.WindowShow
	runtimeWindowUnminimiseFn                     = runtime.WindowUnminimise
	runtimeLogger                appRuntimeLogger = wailsRuntimeLogger{}
	openStoreFn                                   = store.Open
)

const shutdownWaitTimeout = 10 * time.Second

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()

	a.setRuntimeContext(ctx)

	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addPendingConfigLoadWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal. Continue with defaults
		// and surface a warning to the user.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	a.setConfigSnapshot(cfg)

	recent, storeErr := openStoreFn(store.DefaultPath(a.configPath))
	if storeErr != nil {
		runtimeLogger.Warningf(ctx, "recent repository store failed: %v", storeErr)
		a.addPendingConfigLoadWarning(
			"Failed to open the recent repositories database. The recent list will be empty this session. Error: " + storeErr.Error(),
		)
	} else {
		a.recent = recent
	}

	a.startWebSocketServer(ctx, cfg)
	a.startActivationServer(ctx)

	// Warnings stay pending here; the frontend has not registered its
	// EventsOn handlers yet. GetConfigAndFlushWarnings delivers them once
	// the frontend is ready.
}

// startWebSocketServer starts the git operation output stream server.
// Failure is non-fatal: operations fall back to Wails events.
func (a *App) startWebSocketServer(ctx context.Context, cfg config.Config) {
	addr := "127.0.0.1:0"
	if cfg.WebSocketPort > 0 {
		addr = fmt.Sprintf("127.0.0.1:%d", cfg.WebSocketPort)
	}
	hub := wsserver.NewHub(wsserver.HubOptions{Addr: addr})
	if err := hub.Start(ctx); err != nil {
		runtimeLogger.Warningf(ctx, "websocket server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the output stream server. Remote operation progress will use the event fallback. Error: " + err.Error(),
		)
		return
	}
	a.wsHub = hub
	runtimeLogger.Infof(ctx, "websocket server listening: %s", hub.URL())
}

// startActivationServer listens for activation requests from launches that
// found this instance already running. Failure is non-fatal: a second launch
// then exits without surfacing the existing window.
func (a *App) startActivationServer(ctx context.Context) {
	server := ipc.NewActivationServer("", a.activateWindow)
	if err := server.Start(); err != nil {
		runtimeLogger.Warningf(ctx, "activation listener failed: %v", err)
		return
	}
	a.activation = server
}

// activateWindow surfaces the main window when another process asks the
// running instance to take focus.
func (a *App) activateWindow() {
	if a.shuttingDown.Load() {
		return
	}
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	runtimeLogger.Infof(ctx, "activation requested by another instance")
	runtimeWindowUnminimiseFn(ctx)
	runtimeWindowShowFn(ctx)
}

func (a *App) shutdown(_ context.Context) {
	logCtx := a.runtimeContext()
	a.shuttingDown.Store(true)

	a.cancelAllGitOperations()
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for git operations during shutdown")
	}

	a.stopRepoWatcher()

	if a.activation != nil {
		if err := a.activation.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "activation listener stop failed: %v", err)
		}
	}
	if a.wsHub != nil {
		if err := a.wsHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "websocket server stop failed: %v", err)
		}
	}
	if a.recent != nil {
		if err := a.recent.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "recent store close failed: %v", err)
		}
	}
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely, but this function is
	// only used during process shutdown where eventual completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
