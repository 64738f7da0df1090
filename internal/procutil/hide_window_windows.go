//go:build windows

package procutil

import (
	"os/exec"
	"syscall"
)

// HideWindow marks cmd so its console window never appears. Existing
// SysProcAttr fields are left intact.
func HideWindow(cmd *exec.Cmd) {
	if cmd == nil {
		return
	}
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.HideWindow = true
}
