// Package ws implements the WebSocket adapter that pushes installed-app
// changes to the clients of a tenant.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/AppHub/internal/port/broadcast"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection bound to one tenant.
type conn struct {
	ws       *websocket.Conn
	cancel   context.CancelFunc
	tenantID string
	mu       sync.Mutex // serializes writes
}

func (c *conn) write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	originPatterns []string
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub. allowedOrigin is the CORS origin the
// browser client is served from; empty accepts same-origin requests only.
func NewHub(allowedOrigin string) *Hub {
	h := &Hub{conns: make(map[*conn]struct{})}
	if allowedOrigin != "" {
		if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
			h.originPatterns = []string{u.Host}
		}
	}
	return h
}

// Serve upgrades the request and streams events for tenantID until the
// client disconnects. It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, tenantID string) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &conn{ws: ws, cancel: cancel, tenantID: tenantID}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.InfoContext(ctx, "websocket connected", "remote", r.RemoteAddr, "tenant_id", tenantID)

	defer func() {
		h.remove(c)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	}()

	// Read loop detects disconnects and consumes pings. Clients never send
	// meaningful data.
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.send(ctx, msg, func(*conn) bool { return true })
}

// BroadcastToTenant sends a message to the clients of one tenant.
func (h *Hub) BroadcastToTenant(ctx context.Context, tenantID string, msg Message) {
	h.send(ctx, msg, func(c *conn) bool { return c.tenantID == tenantID })
}

func (h *Hub) send(ctx context.Context, msg Message, match func(*conn) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.ErrorContext(ctx, "websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if match(c) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(ctx, data); err != nil {
			slog.DebugContext(ctx, "websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "tenant_id", c.tenantID)
	}
}
