// Package events fans quote book changes out to websocket subscribers.
//
// The Hub implements ports.EventPublisher. Every connected client owns a
// buffered send queue drained by its own writer goroutine; a client whose
// queue is full when an event arrives is disconnected rather than allowed to
// stall publishers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsamuelsen/quotebook/internal/platform/config"
	"github.com/jsamuelsen/quotebook/internal/platform/logging"
	"github.com/jsamuelsen/quotebook/internal/ports"
)

const (
	defaultWriteTimeout = 10 * time.Second
	readLimit           = 4 << 10
)

// ErrHubClosed is returned by Publish after Close.
var ErrHubClosed = errors.New("event hub closed")

var _ ports.EventPublisher = (*Hub)(nil)

// Message is the frame written to subscribers.
type Message struct {
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// HubConfig contains configuration for Hub.
type HubConfig struct {
	Logger *slog.Logger

	// AllowAnyOrigin disables the same-origin check on upgrade.
	AllowAnyOrigin bool

	// SendBuffer is the per-client queue length. Defaults to
	// config.DefaultEventSendBuffer.
	SendBuffer int

	// WriteTimeout bounds a single frame write. Defaults to 10s.
	WriteTimeout time.Duration

	Now func() time.Time
}

// Hub tracks websocket subscribers and broadcasts events to them.
type Hub struct {
	upgrader     websocket.Upgrader
	logger       *slog.Logger
	sendBuffer   int
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	writers sync.WaitGroup
}

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan Message
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = config.DefaultEventSendBuffer
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	h := &Hub{
		logger:       logger.With(slog.String("component", "events.Hub")),
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		now:          now,
		clients:      make(map[*client]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.AllowAnyOrigin || sameOrigin(r)
		},
	}

	return h
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests whose Origin host matches the Host header.
func sameOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return strings.EqualFold(u.Host, r.Host)
}

// Publish implements ports.EventPublisher. It never blocks on a subscriber.
func (h *Hub) Publish(ctx context.Context, event ports.Event) error {
	msg := Message{
		Type:      event.EventType(),
		Payload:   event.Payload(),
		Timestamp: h.now().UTC(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
			logging.FromContextOr(ctx, h.logger).WarnContext(ctx, "dropping slow event subscriber",
				slog.String("remote", c.remote),
				slog.String("type", msg.Type),
			)
		}
	}

	return nil
}

// ServeHTTP upgrades the request and blocks until the subscriber goes away.
// Inbound frames are read and discarded so close and pong frames are seen.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan Message, h.sendBuffer),
	}

	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(h.writeTimeout))
		_ = conn.Close()

		return
	}

	h.logger.DebugContext(r.Context(), "event subscriber connected", slog.String("remote", c.remote))

	conn.SetReadLimit(readLimit)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)

	h.logger.DebugContext(r.Context(), "event subscriber disconnected", slog.String("remote", c.remote))
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}
	h.writers.Go(func() { h.writeLoop(c) })

	return true
}

// writeLoop drains c.send until it is closed, then says goodbye and closes
// the connection. A failed write closes the connection, which ends the read
// loop in ServeHTTP.
func (h *Hub) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))

		if err := c.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("event write failed", slog.Any("error", err))
			h.remove(c)

			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropLocked(c)
}

// dropLocked unregisters c and closes its queue. Safe to call twice.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}

	delete(h.clients, c)
	close(c.send)
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Close disconnects every subscriber and waits for their writers to exit.
// Later upgrades are refused and later publishes fail with ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true

	for c := range h.clients {
		h.dropLocked(c)
	}
	h.mu.Unlock()

	h.writers.Wait()
}
