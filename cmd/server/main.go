package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/chatmate/chatmate/internal/api"
	"github.com/chatmate/chatmate/internal/factory"
	"github.com/chatmate/chatmate/internal/model"
	"github.com/chatmate/chatmate/internal/services/identity"
	redisstorage "github.com/chatmate/chatmate/internal/storage/redis"
	"github.com/chatmate/chatmate/internal/ws"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Build factory config from environment
	cfg := factory.Config{
		Logger:      logger,
		StorageType: os.Getenv("STORAGE_TYPE"),
	}

	if mode := os.Getenv("ACCOUNT_KEY_MODE"); mode != "" {
		identityCfg := identity.DefaultConfig()
		switch mode {
		case "username":
			identityCfg.KeyMode = model.KeyByUsername
		case "email":
			identityCfg.KeyMode = model.KeyByEmail
		default:
			logger.Error("invalid ACCOUNT_KEY_MODE, must be 'username' or 'email'",
				slog.String("value", mode))
			os.Exit(1)
		}
		cfg.IdentityConfig = identityCfg
	}

	if size := os.Getenv("HISTORY_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n <= 0 {
			logger.Error("invalid HISTORY_SIZE", slog.String("value", size))
			os.Exit(1)
		}
		cfg.HistoryCapacity = n
	}

	// Configure Redis if storage type is redis
	if cfg.StorageType == factory.StorageTypeRedis {
		redisURL := os.Getenv("REDIS_URL")
		if redisURL == "" {
			logger.Error("REDIS_URL required when STORAGE_TYPE=redis")
			os.Exit(1)
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = redisURL
		cfg.RedisConfig = &redisCfg
	}

	// Create application factory
	app, err := factory.New(cfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Seed history from the durable store (no-op on memory storage)
	if err := app.History.Seed(context.Background()); err != nil {
		logger.Warn("could not seed history", slog.String("error", err.Error()))
	}

	var allowedOrigins []string
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
	}

	// Create router with the websocket endpoint
	router := api.NewRouter(api.RouterConfig{
		Logger:          logger,
		IdentityService: app.IdentityService,
		Presence:        app.Presence,
		SocketHandler:   ws.NewHandler(app.Hub, app.Coordinator, allowedOrigins, logger),
	})

	// Create server
	serverConfig := api.DefaultServerConfig()
	if port := os.Getenv("SERVER_PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			logger.Error("invalid SERVER_PORT", slog.String("value", port))
			os.Exit(1)
		}
		serverConfig.Port = n
	}
	server := api.NewServer(router, serverConfig, logger)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		app.Hub.Shutdown()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
