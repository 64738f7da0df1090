package main

import "context"

// setRuntimeContext stores the Wails application context handed to startup.
func (a *App) setRuntimeContext(ctx context.Context) {
	a.ctxMu.Lock()
	a.ctx = ctx
	a.ctxMu.Unlock()
}

// runtimeContext returns the Wails application context, or nil before
// startup has run.
func (a *App) runtimeContext() context.Context {
	a.ctxMu.RLock()
	defer a.ctxMu.RUnlock()
	return a.ctx
}
