//go:build windows

package singleinstance

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/ManMan88/wtview/internal/userutil"

	"golang.org/x/sys/windows"
)

// ErrAlreadyRunning is returned by TryLock when another wtview process holds
// the mutex.
var ErrAlreadyRunning = errors.New("another instance is already running")

// Lock holds the named mutex handle. The kernel releases the mutex when the
// owning process terminates, so a crashed instance never wedges the lock.
type Lock struct {
	handle windows.Handle
}

// TryLock attempts to acquire the system-wide named mutex. Returns
// ErrAlreadyRunning when another process owns it.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("mutex name is required")
	}
	nameUTF16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid mutex name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, nameUTF16)
	if err == windows.ERROR_ALREADY_EXISTS {
		// CreateMutex still hands back a handle to the existing mutex.
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, fmt.Errorf("CreateMutex %q: %w", name, err)
	}
	return &Lock{handle: h}, nil
}

// Release closes the mutex handle. Safe on a nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}

// DefaultMutexName returns the per-user mutex identifier. The username
// segment matches the naming used by ipc.DefaultEndpoint so both objects
// belong to the same session.
func DefaultMutexName() string {
	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return `Global\wtview-` + userutil.SanitizeUsername(username)
}
