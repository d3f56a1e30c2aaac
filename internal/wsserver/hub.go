package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeDeadline bounds a single outbound frame write.
const writeDeadline = 5 * time.Second

// readDeadline is how long the server waits for read activity
// (including pongs) before considering a client dead.
const readDeadline = 90 * time.Second

// pingInterval is the server-initiated keepalive cadence; three missed
// pings (readDeadline = 3*pingInterval) close the connection.
const pingInterval = 30 * time.Second

// maxReadMessageSize bounds incoming text frames. Command frames are
// short (a verb plus a handful of arguments); 32 KiB is generous.
const maxReadMessageSize = 32 * 1024

// sendQueueDepth is the outbound buffer per client. FIFO ordering on one
// socket matters, so sends are queued, never dropped, and a full queue
// closes the slow client rather than blocking the hub.
const sendQueueDepth = 64

var wsUpgrader = websocket.Upgrader{
	// The control plane is password-authenticated at the frame layer,
	// so origin checking is not a meaningful additional gate; operators
	// may connect bridge clients from arbitrary hosts.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// HubOptions configures the control-plane listener.
type HubOptions struct {
	// Addr is the listen address, e.g. "1.2.3.4:7500".
	Addr string
	// Path is the WebSocket upgrade path.
	Path string
}

// Dispatcher handles one inbound text frame from a client and decides
// what (if anything) to send back. It is implemented by internal/control
// so wsserver stays ignorant of the verb grammar.
type Dispatcher interface {
	// HandleAuthFrame is called for every frame from an unauthenticated
	// client. It returns true once the client has successfully
	// authenticated.
	HandleAuthFrame(text string) bool
	// HandleCommand is called for every frame from an authenticated
	// client. Any non-empty return value is sent back to the
	// originator only.
	HandleCommand(text string) string
}

// DispatcherFactory builds one Dispatcher per connection, bound to that
// connection's Client handle so the dispatcher can broadcast and reply.
type DispatcherFactory func(c *Client) Dispatcher

// Client is per-connection state: an outbound
// send queue and the authed flag. Created on upgrade, destroyed on
// disconnect.
type Client struct {
	ID     string
	authed atomic.Bool

	send chan string
	done chan struct{}
	once sync.Once
}

// Authed reports whether the client's handshake frame has matched the
// shared password.
func (c *Client) Authed() bool { return c.authed.Load() }

// Send enqueues a text frame for this client, preserving FIFO order.
// A full queue (a stalled client) causes disconnection rather than
// blocking the caller.
func (c *Client) Send(text string) {
	select {
	case c.send <- text:
	default:
		slog.Warn("control plane send queue full, closing connection", "id", c.ID)
		c.closeNow()
	}
}

func (c *Client) closeNow() {
	c.once.Do(func() { close(c.done) })
}

// Hub manages every connected control-plane client: every accepted
// connection gets its own tracked Client and survives independently
// of any other.
type Hub struct {
	opts    HubOptions
	factory DispatcherFactory

	mu      sync.Mutex
	clients map[string]*Client

	listener net.Listener
	server   *http.Server
	closeOnce sync.Once
}

// NewHub creates a Hub. factory is called once per accepted connection
// to build the verb dispatcher bound to that connection's Client.
func NewHub(opts HubOptions, factory DispatcherFactory) *Hub {
	if opts.Path == "" {
		opts.Path = "/taurus"
	}
	return &Hub{
		opts:    opts,
		factory: factory,
		clients: make(map[string]*Client),
	}
}

// Start begins listening and serving WebSocket upgrades. ctx is used as
// the HTTP server's BaseContext; cancelling it cancels request handler
// contexts but does not itself stop Serve (call Stop for that).
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(h.opts.Path, h.handleWS)

	h.server = &http.Server{
		Handler: mux,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("control plane server error", "err", serveErr)
		}
	}()

	slog.Info("control plane listening", "addr", ln.Addr().String(), "path", h.opts.Path)
	return nil
}

// Stop shuts the HTTP server down and closes every tracked client.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		clients := make([]*Client, 0, len(h.clients))
		for _, c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()
		for _, c := range clients {
			c.closeNow()
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
	})
	return stopErr
}

// ClientCount returns the number of currently connected clients (tests,
// diagnostics).
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends text to every currently authenticated client.
func (h *Hub) Broadcast(text string) {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.Authed() {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Send(text)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("control plane upgrade failed", "err", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		send: make(chan string, sendQueueDepth),
		done: make(chan struct{}),
	}
	h.register(client)
	defer h.unregister(client)

	dispatcher := h.factory(client)

	conn.SetReadLimit(maxReadMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	var writeMu sync.Mutex
	writeText := func(text string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		return conn.WriteMessage(websocket.TextMessage, []byte(text))
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-client.done:
				return
			case text, ok := <-client.send:
				if !ok {
					return
				}
				if err := writeText(text); err != nil {
					client.closeNow()
					return
				}
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					client.closeNow()
					return
				}
			}
		}
	}()

	go func() {
		<-client.done
		_ = conn.Close()
	}()

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("control plane connection handler recovered", "panic", rec, "stack", string(debug.Stack()))
		}
		client.closeNow()
		<-writerDone
		_ = conn.Close()
		slog.Debug("control plane client disconnected", "id", client.ID)
	}()

	slog.Debug("control plane client connected", "id", client.ID, "remote", conn.RemoteAddr())

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("control plane read error", "err", readErr)
			}
			return
		}
		// TextMessage frames are guaranteed valid UTF-8 by
		// gorilla/websocket, so any other frame type is itself the
		// protocol violation here.
		if msgType != websocket.TextMessage {
			slog.Warn("control plane closing connection on non-text frame", "id", client.ID, "type", msgType)
			return
		}

		text := string(msg)
		if !client.Authed() {
			if dispatcher.HandleAuthFrame(text) {
				client.authed.Store(true)
			}
			continue
		}

		if reply := dispatcher.HandleCommand(text); reply != "" {
			client.Send(reply)
		}
	}
}
