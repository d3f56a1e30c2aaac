package wsserver

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testPassword = "s3cret"

// echoDispatcher is a minimal test Dispatcher: the first frame must
// equal the password, and PING replies with a PONG.
type echoDispatcher struct {
	c *Client
}

func (d *echoDispatcher) HandleAuthFrame(text string) bool {
	return CheckPassword(text, testPassword)
}

func (d *echoDispatcher) HandleCommand(text string) string {
	if text == "PING" {
		return "PONG 123"
	}
	return ""
}

func newTestHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(HubOptions{Addr: "127.0.0.1:0"}, func(c *Client) Dispatcher {
		return &echoDispatcher{c: c}
	})
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })

	addr := h.listener.Addr().String()
	u := url.URL{Scheme: "ws", Host: addr, Path: "/taurus"}
	return h, u.String()
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestAuthGateRejectsBeforeCorrectPassword(t *testing.T) {
	_, wsURL := newTestHub(t)
	conn := dial(t, wsURL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("wrongpw")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected no reply before authentication")
	}
}

func TestAuthGateAcceptsCorrectPasswordThenReplies(t *testing.T) {
	_, wsURL := newTestHub(t)
	conn := dial(t, wsURL)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(testPassword)); err != nil {
		t.Fatalf("write password: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a reply after authentication, got error: %v", err)
	}
	if !strings.HasPrefix(string(msg), "PONG ") {
		t.Fatalf("got %q, want PONG reply", msg)
	}
}

func TestBroadcastOnlyReachesAuthenticatedClients(t *testing.T) {
	h, wsURL := newTestHub(t)

	authed := dial(t, wsURL)
	if err := authed.WriteMessage(websocket.TextMessage, []byte(testPassword)); err != nil {
		t.Fatalf("write password: %v", err)
	}

	unauthed := dial(t, wsURL)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 2 {
		t.Fatalf("expected 2 registered clients, got %d", h.ClientCount())
	}
	// Give the authed client's handshake frame time to be processed.
	time.Sleep(50 * time.Millisecond)

	h.Broadcast("MSG [srv1] hello")

	_ = authed.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := authed.ReadMessage()
	if err != nil {
		t.Fatalf("authenticated client expected broadcast, got error: %v", err)
	}
	if string(msg) != "MSG [srv1] hello" {
		t.Fatalf("got %q", msg)
	}

	_ = unauthed.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := unauthed.ReadMessage(); err == nil {
		t.Fatal("unauthenticated client must never receive a broadcast frame")
	}
}

func TestClientCountTracksConnectAndDisconnect(t *testing.T) {
	h, wsURL := newTestHub(t)
	conn := dial(t, wsURL)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", h.ClientCount())
	}

	_ = conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after disconnect, got %d", h.ClientCount())
	}
}
