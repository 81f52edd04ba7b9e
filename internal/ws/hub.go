// Package ws is the websocket transport: it upgrades connections,
// pumps frames, and bridges wire events to the chat coordinator.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/chatmate/chatmate/internal/model"
)

// Hub tracks live websocket clients and delivers outbound events.
// It implements the coordinator's Sender; delivery to an unknown or
// departed connection is a no-op.
type Hub struct {
	mu      sync.RWMutex
	clients map[model.ConnID]*Client

	logger *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[model.ConnID]*Client),
		logger:  logger.With(slog.String("component", "hub")),
	}
}

// Register adds a client to the delivery table
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.logger.Info("client registered",
		slog.String("conn", string(client.id)),
		slog.Int("clients", len(h.clients)))
}

// Unregister removes a client and closes its outbound queue. Safe to
// call for a connection that was never registered or already removed.
func (h *Hub) Unregister(conn model.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[conn]
	if !ok {
		return
	}
	delete(h.clients, conn)
	close(client.send)

	h.logger.Info("client unregistered",
		slog.String("conn", string(conn)),
		slog.Int("clients", len(h.clients)))
}

// Send marshals an event and queues it for one connection. A client
// whose queue is full has stopped reading; the event is dropped rather
// than blocking the rest of the fan-out.
func (h *Hub) Send(conn model.ConnID, event model.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("event marshal failed",
			slog.String("event", string(event.Event)), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[conn]
	if !ok {
		return
	}

	select {
	case client.send <- payload:
	default:
		h.logger.Warn("send queue full, dropping event",
			slog.String("conn", string(conn)),
			slog.String("event", string(event.Event)))
	}
}

// Len returns the number of registered clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown force-closes every client connection. Pumps notice the
// closed sockets and unwind through their normal disconnect path.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.closeConn()
	}
	h.logger.Info("hub shutdown", slog.Int("clients", len(clients)))
}
