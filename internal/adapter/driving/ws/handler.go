// Package ws implements the UI push channel as a WebSocket driving adapter.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/wabridge/internal/application"
	"github.com/ericfisherdev/wabridge/internal/domain/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBufferSize = 16
)

// Handler upgrades UI connections and subscribes them to the notifier.
type Handler struct {
	notifier *application.Notifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler relaying notifier events to WebSocket clients.
func NewHandler(notifier *application.Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// RegisterRoutes registers the push endpoint on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /ws", h)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
// The newest client becomes the only subscriber.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan model.PushEvent, sendBufferSize),
		done:   make(chan struct{}),
		logger: h.logger,
	}

	go c.writePump()
	h.notifier.Subscribe(c)
	h.logger.Info("ui client connected", "remote", r.RemoteAddr)

	c.readPump()

	h.notifier.Unsubscribe(c)
	close(c.done)
	h.logger.Info("ui client disconnected", "remote", r.RemoteAddr)
}

// client is one UI connection. It implements application.Subscriber.
type client struct {
	conn   *websocket.Conn
	send   chan model.PushEvent
	done   chan struct{}
	logger *slog.Logger
}

// Deliver queues ev without blocking. Events that do not fit are dropped.
func (c *client) Deliver(ev model.PushEvent) {
	select {
	case c.send <- ev:
	default:
		c.logger.Warn("ui client send buffer full, dropping event", "event", ev.Name)
	}
}

// writePump writes queued events and periodic pings until done is closed or
// a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.send:
			data, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("failed to marshal push event", "event", ev.Name, "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("ui client write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; it exists to process control frames and
// notice when the client goes away.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("ui client read error", "error", err)
			}
			return
		}
	}
}
