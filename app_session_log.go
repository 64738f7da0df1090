package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/ManMan88/wtview/internal/sessionlog"
)

// sessionLogEmitInterval throttles app:session-log-updated events. The
// frontend re-reads the full buffer on each event, so per-record emission
// would only add churn.
const sessionLogEmitInterval = time.Second

// setupSessionLogging installs the process-wide slog handler. Every record
// still goes to stderr; records at warn or above are additionally captured
// into the in-memory session buffer shown in the frontend log panel.
func (a *App) setupSessionLogging() {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	tee := sessionlog.NewTeeHandler(base, slog.LevelWarn, a.captureSessionLogEntry)
	slog.SetDefault(slog.New(tee))
}

// GetSessionLog returns a snapshot of the captured warning and error log
// entries, oldest first.
func (a *App) GetSessionLog() []sessionlog.Entry {
	a.sessionLogMu.Lock()
	buf := a.sessionLogEntries
	a.sessionLogMu.Unlock()
	if buf == nil {
		return []sessionlog.Entry{}
	}
	return buf.Snapshot()
}

func (a *App) captureSessionLogEntry(ts time.Time, level slog.Level, msg string, group string) {
	a.sessionLogMu.Lock()
	if a.sessionLogEntries != nil {
		a.sessionLogEntries.Record(ts, level, msg, group)
	}
	emit := time.Since(a.sessionLogLastEmit) >= sessionLogEmitInterval
	if emit {
		a.sessionLogLastEmit = time.Now()
	}
	a.sessionLogMu.Unlock()

	if emit && !a.shuttingDown.Load() {
		a.emitRuntimeEvent(eventSessionLogUpdated, nil)
	}
}
