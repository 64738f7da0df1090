package main

import (
	"log/slog"
	"runtime/debug"
)

func recoverBackgroundPanic(worker string, recovered any) bool {
	if recovered != nil {
		slog.Error("[DEBUG-PANIC] background goroutine recovered from panic",
			"worker", worker,
			"panic", recovered,
			"stack", string(debug.Stack()),
		)
		return true
	}
	return false
}
