// Package ipc provides a tiny per-user channel used to signal an already
// running instance of the app. A second launch sends a single activation
// request and exits; the running instance surfaces its window.
package ipc

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/user"
	"runtime"
	"strings"

	"github.com/ManMan88/wtview/internal/userutil"
)

// ActionActivate asks the running instance to bring its window to front.
const ActionActivate = "activate"

// ActivationRequest is a single request sent by a newly launched process to
// the instance that already holds the single-instance lock.
type ActivationRequest struct {
	Action string `json:"action"`
}

// ActivationResponse acknowledges an activation request.
type ActivationResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// DefaultEndpoint returns the per-user endpoint name. If the WTVIEW_IPC
// environment variable is set and passes pattern validation, its value is
// used; otherwise a default is constructed from the current username.
func DefaultEndpoint() string {
	if v, ok := trustedEndpointFromEnv(); ok {
		return v
	}
	return endpointForUser(currentUsername())
}

func currentUsername() string {
	key := "USER"
	if runtime.GOOS == "windows" {
		key = "USERNAME"
	}
	username := strings.TrimSpace(os.Getenv(key))
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return userutil.SanitizeUsername(username)
}

func trustedEndpointFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("WTVIEW_IPC"))
	if value == "" {
		return "", false
	}
	if !validEndpointPattern.MatchString(value) {
		slog.Warn("[ipc] WTVIEW_IPC rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeRequest(req ActivationRequest) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(raw []byte) (ActivationRequest, error) {
	var req ActivationRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ActivationRequest{}, err
	}
	return req, nil
}

func encodeResponse(resp ActivationResponse) ([]byte, error) {
	return json.Marshal(resp)
}

func decodeResponse(raw []byte) (ActivationResponse, error) {
	var resp ActivationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ActivationResponse{}, err
	}
	return resp, nil
}
