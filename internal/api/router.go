package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatmate/chatmate/internal/api/handler"
	"github.com/chatmate/chatmate/internal/api/response"
	"github.com/chatmate/chatmate/internal/middleware"
	"github.com/chatmate/chatmate/internal/presence"
	"github.com/chatmate/chatmate/internal/services/identity"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger          *slog.Logger
	IdentityService *identity.Service
	Presence        *presence.Registry
	// SocketHandler serves the websocket upgrade route
	SocketHandler http.Handler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	accountHandler := handler.NewAccountHandler(cfg.IdentityService)

	// Logging registers first so its writer wrapper is what recovery
	// and the upgrade path see.
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger, middleware.DefaultPanicHandler))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", accountHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/health", healthHandler(cfg.Presence)).Methods(http.MethodGet)

	r.Handle("/ws", cfg.SocketHandler).Methods(http.MethodGet)

	return r
}

func healthHandler(registry *presence.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status: "ok",
			Online: registry.Len(),
		})
	}
}
