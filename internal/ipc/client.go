package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

const (
	dialTimeout = 3 * time.Second
	rwTimeout   = 10 * time.Second
)

// Send sends one request and waits for one response. An empty endpoint
// selects the per-user default.
func Send(endpoint string, req ActivationRequest) (ActivationResponse, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}

	conn, err := dialEndpoint(endpoint, dialTimeout)
	if err != nil {
		return ActivationResponse{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(rwTimeout)); err != nil {
		return ActivationResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	raw, err := encodeRequest(req)
	if err != nil {
		return ActivationResponse{}, err
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		return ActivationResponse{}, err
	}

	respRaw, err := readFrame(bufio.NewReaderSize(conn, maxFrameBytes+1), maxFrameBytes)
	if err != nil {
		return ActivationResponse{}, err
	}

	resp, err := decodeResponse(respRaw)
	if err != nil {
		return ActivationResponse{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}

// IsConnectionError returns true when the error indicates that the
// activation server is absent or unreachable (dial/connect failures).
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	// Named pipe dial failures surface as path errors.
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Op == "open"
	}
	return false
}
