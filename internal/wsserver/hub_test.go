package wsserver

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testListenAddr is the address used for all test hubs. Port 0 lets the OS
// assign an ephemeral port, avoiding cross-test port conflicts.
const testListenAddr = "127.0.0.1:0"

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// waitForCondition polls fn every 10ms until it returns true or the timeout
// expires. Returns true if the condition was met, false on timeout.
func waitForCondition(t *testing.T, timeout time.Duration, fn func() bool) bool {
	t.Helper()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case <-ticker.C:
			if fn() {
				return true
			}
		case <-deadline.C:
			return false
		}
	}
}

func waitForConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		return hub.HasActiveConnection()
	}) {
		t.Fatal("timed out waiting for hub to register connection")
	}
}

func waitForNoConnection(t *testing.T, hub *Hub) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		return !hub.HasActiveConnection()
	}) {
		t.Fatal("timed out waiting for hub to clear connection")
	}
}

// waitForSubscribed polls until the hub's subscribed map contains the given
// opID or the timeout expires.
func waitForSubscribed(t *testing.T, hub *Hub, opID string) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.subscribed[opID]
	}) {
		t.Fatalf("timed out waiting for subscription to opID %q", opID)
	}
}

func waitForUnsubscribed(t *testing.T, hub *Hub, opID string) {
	t.Helper()
	if !waitForCondition(t, 2*time.Second, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return !hub.subscribed[opID]
	}) {
		t.Fatalf("timed out waiting for unsubscription of opID %q", opID)
	}
}

// dialHub dials the Hub's WebSocket endpoint.
func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(hub.URL())
	if err != nil {
		t.Fatalf("failed to parse hub URL %q: %v", hub.URL(), err)
	}

	conn, _, dialErr := websocket.DefaultDialer.Dial(u.String(), nil)
	if dialErr != nil {
		t.Fatalf("failed to dial hub: %v", dialErr)
	}
	return conn
}

func sendSubscribe(t *testing.T, conn *websocket.Conn, opIDs []string) {
	t.Helper()
	msg := subscribeMsg{Action: "subscribe", OpIDs: opIDs}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal subscribe message: %v", err)
	}
	if writeErr := conn.WriteMessage(websocket.TextMessage, data); writeErr != nil {
		t.Fatalf("failed to write subscribe message: %v", writeErr)
	}
}

func sendUnsubscribe(t *testing.T, conn *websocket.Conn, opIDs []string) {
	t.Helper()
	msg := subscribeMsg{Action: "unsubscribe", OpIDs: opIDs}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal unsubscribe message: %v", err)
	}
	if writeErr := conn.WriteMessage(websocket.TextMessage, data); writeErr != nil {
		t.Fatalf("failed to write unsubscribe message: %v", writeErr)
	}
}

func sendRawText(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("failed to write raw text message: %v", err)
	}
}

// readBinaryFrame reads one binary frame from the connection.
func readBinaryFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected BinaryMessage (%d), got %d", websocket.BinaryMessage, msgType)
	}
	return msg
}

// readErrorResponse reads a JSON error response from the connection.
func readErrorResponse(t *testing.T, conn *websocket.Conn) errorMsg {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage returned error: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected TextMessage (%d), got %d", websocket.TextMessage, msgType)
	}
	var errResp errorMsg
	if jsonErr := json.Unmarshal(msg, &errResp); jsonErr != nil {
		t.Fatalf("failed to unmarshal error response %q: %v", msg, jsonErr)
	}
	return errResp
}

// startHub creates and starts a Hub for testing, registering cleanup.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(HubOptions{Addr: testListenAddr})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		if err := hub.Stop(); err != nil {
			t.Errorf("hub.Stop() returned error: %v", err)
		}
		cancel()
	})
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("hub.Start() returned error: %v", err)
	}
	return hub
}

// ---------------------------------------------------------------------------
// Lifecycle tests
// ---------------------------------------------------------------------------

func TestHubStartAssignsURL(t *testing.T) {
	hub := startHub(t)
	if hub.URL() == "" {
		t.Fatal("URL() should be set after Start")
	}
	u, err := url.Parse(hub.URL())
	if err != nil {
		t.Fatalf("URL() not parseable: %v", err)
	}
	if u.Scheme != "ws" || u.Path != "/ws" {
		t.Errorf("URL = %q, want ws://127.0.0.1:<port>/ws", hub.URL())
	}
}

func TestHubDoubleStartFails(t *testing.T) {
	hub := startHub(t)
	if err := hub.Start(context.Background()); err == nil {
		t.Fatal("second Start() should fail")
	}
}

func TestHubStopIsIdempotent(t *testing.T) {
	hub := NewHub(HubOptions{Addr: testListenAddr})
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("first Stop() error = %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestHubConnectionLifecycle(t *testing.T) {
	hub := startHub(t)

	if hub.HasActiveConnection() {
		t.Fatal("fresh hub should have no connection")
	}

	conn := dialHub(t, hub)
	waitForConnection(t, hub)

	conn.Close()
	waitForNoConnection(t, hub)
}

func TestHubReplacesConnectionOnReconnect(t *testing.T) {
	hub := startHub(t)

	first := dialHub(t, hub)
	defer first.Close()
	waitForConnection(t, hub)
	sendSubscribe(t, first, []string{"op-1"})
	waitForSubscribed(t, hub, "op-1")

	// A second dial (page reload) replaces the first connection and resets
	// subscriptions.
	second := dialHub(t, hub)
	defer second.Close()
	waitForUnsubscribed(t, hub, "op-1")
	waitForConnection(t, hub)
}

// ---------------------------------------------------------------------------
// Subscription and broadcast tests
// ---------------------------------------------------------------------------

func TestSubscribeAndBroadcast(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"op-fetch"})
	waitForSubscribed(t, hub, "op-fetch")

	hub.BroadcastOpOutput("op-fetch", []byte("remote: Enumerating objects\n"))

	frame := readBinaryFrame(t, conn)
	opID, data, err := DecodeOpOutput(frame)
	if err != nil {
		t.Fatalf("DecodeOpOutput() error = %v", err)
	}
	if opID != "op-fetch" {
		t.Errorf("opID = %q, want op-fetch", opID)
	}
	if string(data) != "remote: Enumerating objects\n" {
		t.Errorf("data = %q", data)
	}
}

func TestBroadcastSkipsUnsubscribedOp(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"op-a"})
	waitForSubscribed(t, hub, "op-a")

	hub.BroadcastOpOutput("op-other", []byte("should not arrive"))
	hub.BroadcastOpOutput("op-a", []byte("should arrive"))

	frame := readBinaryFrame(t, conn)
	opID, data, err := DecodeOpOutput(frame)
	if err != nil {
		t.Fatal(err)
	}
	if opID != "op-a" || string(data) != "should arrive" {
		t.Errorf("got frame for %q (%q), want op-a", opID, data)
	}
}

func TestBroadcastNoopWithoutConnection(t *testing.T) {
	hub := startHub(t)
	// Must not panic or block.
	hub.BroadcastOpOutput("op-x", []byte("data"))
}

func TestBroadcastEmptyDataIsNoop(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"op-a"})
	waitForSubscribed(t, hub, "op-a")

	hub.BroadcastOpOutput("op-a", nil)
	hub.BroadcastOpOutput("op-a", []byte("real"))

	frame := readBinaryFrame(t, conn)
	_, data, err := DecodeOpOutput(frame)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "real" {
		t.Errorf("first delivered frame = %q, want %q", data, "real")
	}
}

func TestUnsubscribeViaMessage(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"op-a", "op-b"})
	waitForSubscribed(t, hub, "op-a")
	waitForSubscribed(t, hub, "op-b")

	sendUnsubscribe(t, conn, []string{"op-a"})
	waitForUnsubscribed(t, hub, "op-a")

	hub.mu.RLock()
	stillB := hub.subscribed["op-b"]
	hub.mu.RUnlock()
	if !stillB {
		t.Error("op-b should remain subscribed")
	}
}

func TestServerSideUnsubscribe(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"op-done"})
	waitForSubscribed(t, hub, "op-done")

	hub.Unsubscribe("op-done")
	waitForUnsubscribed(t, hub, "op-done")

	// Empty ID is a no-op, not a panic.
	hub.Unsubscribe("")
}

func TestSubscribeIgnoresEmptyIDs(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendSubscribe(t, conn, []string{"", "op-real"})
	waitForSubscribed(t, hub, "op-real")

	hub.mu.RLock()
	empty := hub.subscribed[""]
	hub.mu.RUnlock()
	if empty {
		t.Error("empty opID should not be subscribed")
	}
}

func TestInvalidJSONGetsErrorResponse(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendRawText(t, conn, "{not json")
	errResp := readErrorResponse(t, conn)
	if errResp.Type != "error" {
		t.Errorf("Type = %q, want error", errResp.Type)
	}
	if errResp.Message == "" {
		t.Error("Message should describe the JSON error")
	}
}

func TestUnknownActionIsIgnored(t *testing.T) {
	hub := startHub(t)
	conn := dialHub(t, hub)
	defer conn.Close()
	waitForConnection(t, hub)

	sendRawText(t, conn, `{"action":"bogus","opIds":["op-a"]}`)

	// The hub must stay connected and functional after an unknown action.
	sendSubscribe(t, conn, []string{"op-a"})
	waitForSubscribed(t, hub, "op-a")
}
