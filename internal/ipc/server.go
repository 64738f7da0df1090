package ipc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	connTimeout   = 10 * time.Second
	maxFrameBytes = 4 * 1024 // activation frames are tiny; anything larger is garbage
)

// ActivationServer listens on the per-user endpoint and invokes a callback
// when another process asks the running instance to activate its window.
type ActivationServer struct {
	endpoint   string
	onActivate func()

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	listener net.Listener
	started  bool
	wg       sync.WaitGroup
}

// NewActivationServer constructs an ActivationServer. An empty endpoint
// selects the per-user default.
func NewActivationServer(endpoint string, onActivate func()) *ActivationServer {
	ctx, cancel := context.WithCancel(context.Background())
	if endpoint == "" {
		endpoint = DefaultEndpoint()
	}
	return &ActivationServer{
		endpoint:   endpoint,
		onActivate: onActivate,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Endpoint returns the listen endpoint name.
func (s *ActivationServer) Endpoint() string {
	return s.endpoint
}

// Start begins listening on the endpoint.
func (s *ActivationServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("activation server already started")
	}
	if s.onActivate == nil {
		return errors.New("activation server requires a callback")
	}

	listener, err := listenEndpoint(s.endpoint)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.endpoint, err)
	}

	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	return nil
}

// Stop gracefully shuts down the server. Safe to call before Start and more
// than once.
func (s *ActivationServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Warn("[ipc] failed to close activation listener during shutdown", "error", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *ActivationServer) acceptLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				consecutiveErrors++
				if consecutiveErrors > 10 {
					slog.Warn("[ipc] accept loop: repeated failures, possible permanent error", "error", err, "count", consecutiveErrors)
					time.Sleep(500 * time.Millisecond)
				} else {
					slog.Debug("[ipc] accept error", "error", err)
				}
				continue
			}
		}
		consecutiveErrors = 0

		s.wg.Go(func() {
			s.handleConnection(conn)
		})
	}
}

// handleConnection processes a single client connection (one request per
// connection). A deadline of connTimeout is enforced and frames exceeding
// maxFrameBytes are rejected with an error response.
func (s *ActivationServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(connTimeout)); err != nil {
		slog.Warn("[ipc] failed to set connection deadline", "error", err)
		return
	}

	reader := bufio.NewReaderSize(conn, maxFrameBytes+1)
	raw, err := readFrame(reader, maxFrameBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	if err != nil {
		s.writeResponse(conn, ActivationResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	req, err := decodeRequest(raw)
	if err != nil {
		s.writeResponse(conn, ActivationResponse{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}

	if req.Action != ActionActivate {
		slog.Warn("[ipc] unknown activation action", "action", req.Action)
		s.writeResponse(conn, ActivationResponse{Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	slog.Debug("[ipc] activation request received")
	s.onActivate()
	s.writeResponse(conn, ActivationResponse{OK: true})
}

func (s *ActivationServer) writeResponse(conn net.Conn, resp ActivationResponse) {
	raw, err := encodeResponse(resp)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err)
		raw = []byte(`{"ok":false,"error":"internal encode error"}`)
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err)
	}
}

func readFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
