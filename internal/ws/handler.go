package ws

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chatmate/chatmate/internal/model"
)

// Handler upgrades HTTP requests to websocket connections and starts
// the per-client pumps.
type Handler struct {
	hub      *Hub
	handler  EventHandler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the websocket endpoint handler. With no allowed
// origins configured every origin is accepted, which suits local and
// same-origin deployments.
func NewHandler(hub *Hub, handler EventHandler, allowedOrigins []string, logger *slog.Logger) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = struct{}{}
	}

	return &Handler{
		hub:     hub,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		logger: logger.With(slog.String("component", "ws")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		return
	}

	client := NewClient(model.ConnID(uuid.NewString()), conn, h.logger)
	h.hub.Register(client)

	h.logger.Info("connection accepted",
		slog.String("conn", string(client.ID())),
		slog.String("remote", r.RemoteAddr))

	go client.writePump()
	h.handler.Connect(client.ID())

	// Detached from the request context: the connection outlives the
	// upgrade request, and events must not be cancelled when it ends.
	go client.readPump(context.WithoutCancel(r.Context()), h.hub, h.handler)
}
