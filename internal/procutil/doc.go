// Package procutil provides small cross-platform process helpers.
// HideWindow suppresses the console window flash on Windows when child
// processes (the git CLI) are spawned via exec.Command.
package procutil
