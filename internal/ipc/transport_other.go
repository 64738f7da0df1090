//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var validEndpointPattern = regexp.MustCompile(`^/[^\x00]{1,200}/wtview-[a-zA-Z0-9._-]{1,128}\.sock$`)

func endpointForUser(username string) string {
	return filepath.Join(runtimeDir(), "wtview-"+username+".sock")
}

func runtimeDir() string {
	if dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); dir != "" {
		return dir
	}
	return os.TempDir()
}

// listenEndpoint creates a Unix domain socket listener. A stale socket file
// from a crashed process is removed first; the live socket is detected by the
// single-instance lock before this is ever reached.
func listenEndpoint(endpoint string) (net.Listener, error) {
	if err := os.Remove(endpoint); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", endpoint, err)
	}
	listener, err := net.Listen("unix", endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(endpoint, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket %s: %w", endpoint, err)
	}
	return listener, nil
}

func dialEndpoint(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", endpoint, timeout)
}
