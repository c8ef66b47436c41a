// Package realtime pushes order status changes to WebSocket subscribers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"orderflow/internal/orders"
)

// StatusEvent is the wire shape of one status change.
type StatusEvent struct {
	Event      string    `json:"event"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	At         time.Time `json:"at"`
}

const eventStatusChanged = "order.status_changed"

// Feed fans order status events out to connected WebSocket clients. Slow or
// broken clients are dropped rather than allowed to stall the broadcast.
type Feed struct {
	logger *slog.Logger

	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}

	upgrader websocket.Upgrader
	now      func() time.Time
}

// NewFeed constructs the feed.
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		logger:      logger,
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		broadcast:   make(chan []byte, 16),
		connections: make(map[*websocket.Conn]struct{}),
		upgrader:    websocket.Upgrader{},
		now:         time.Now,
	}
}

// Run processes register, unregister, and broadcast events until the context
// ends, then closes every remaining connection.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case conn := <-f.register:
			f.mu.Lock()
			f.connections[conn] = struct{}{}
			f.mu.Unlock()
		case conn := <-f.unregister:
			f.mu.Lock()
			delete(f.connections, conn)
			f.mu.Unlock()
			conn.Close()
		case msg := <-f.broadcast:
			f.mu.Lock()
			for conn := range f.connections {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(f.connections, conn)
				}
			}
			f.mu.Unlock()
		}
	}
}

// NotifyStatusChange is wired as an order service status listener.
func (f *Feed) NotifyStatusChange(o orders.Order, from orders.Status) {
	event := StatusEvent{
		Event:      eventStatusChanged,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		From:       string(from),
		To:         string(o.Status),
		At:         f.now().UTC(),
	}
	msg, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("failed to encode status event", "order_id", o.ID, "error", err)
		return
	}

	// Drop rather than block: the saga must never wait on subscribers.
	select {
	case f.broadcast <- msg:
	default:
		f.logger.Warn("status feed backlogged, dropping event", "order_id", o.ID)
	}
}

// ServeHTTP upgrades the request and registers the connection. Inbound
// messages are read and discarded to service control frames.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	f.register <- conn

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.unregister <- conn
				return
			}
		}
	}()
}

// Subscribers reports the number of connected clients.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connections)
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.connections {
		conn.Close()
	}
	f.connections = make(map[*websocket.Conn]struct{})
}
