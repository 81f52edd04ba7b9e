// Package factory wires the application components together.
package factory

import (
	"errors"
	"io"
	"log/slog"

	"github.com/chatmate/chatmate/internal/dependencies/clock"
	"github.com/chatmate/chatmate/internal/presence"
	"github.com/chatmate/chatmate/internal/services/chat"
	"github.com/chatmate/chatmate/internal/services/history"
	"github.com/chatmate/chatmate/internal/services/identity"
	"github.com/chatmate/chatmate/internal/storage"
	"github.com/chatmate/chatmate/internal/storage/memory"
	redisstorage "github.com/chatmate/chatmate/internal/storage/redis"
	"github.com/chatmate/chatmate/internal/ws"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock clock.Clock

	// Services
	IdentityService *identity.Service
	History         *history.Service
	Presence        *presence.Registry
	Coordinator     *chat.Coordinator

	// Transport
	Hub *ws.Hub
}

// Config holds configuration for the application factory
type Config struct {
	// IdentityConfig holds configuration for the identity service (optional)
	// If zero value, defaults to identity.DefaultConfig()
	IdentityConfig identity.Config
	// HistoryCapacity overrides the message log capacity (optional)
	// If zero, memory storage keeps 100 events and redis storage 1000
	HistoryCapacity int
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var store storage.Storage
	// Only a durable backend feeds the history log; with memory storage
	// the log is its own source of truth.
	var messageStore storage.Storage
	capacity := cfg.HistoryCapacity

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
		if capacity == 0 {
			capacity = history.DefaultCapacity
		}
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
		messageStore = redisStore
		if capacity == 0 {
			capacity = history.PersistedCapacity
		}
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	identityCfg := cfg.IdentityConfig
	if identityCfg.KeyMode == "" && identityCfg.MinPasswordLen == 0 {
		identityCfg = identity.DefaultConfig()
	}

	return newWithDependencies(store, messageStore, capacity, clock.New(), identityCfg, logger), nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(
	store storage.Storage,
	messageStore storage.Storage,
	historyCapacity int,
	clk clock.Clock,
	identityCfg identity.Config,
	logger *slog.Logger,
) *App {
	identitySvc := identity.New(store, clk, identityCfg, logger)
	historySvc := history.New(historyCapacity, messageStore, logger)
	registry := presence.NewRegistry(logger)
	hub := ws.NewHub(logger)
	coordinator := chat.NewCoordinator(registry, historySvc, identitySvc, hub, clk, logger)

	return &App{
		Storage:         store,
		Clock:           clk,
		IdentityService: identitySvc,
		History:         historySvc,
		Presence:        registry,
		Coordinator:     coordinator,
		Hub:             hub,
	}
}
