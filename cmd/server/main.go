package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/gochat-rooms/internal/auth"
	"github.com/Tyrowin/gochat-rooms/internal/chat"
	"github.com/Tyrowin/gochat-rooms/internal/logger"
	"github.com/Tyrowin/gochat-rooms/internal/notify"
	"github.com/Tyrowin/gochat-rooms/internal/server"
	"github.com/Tyrowin/gochat-rooms/internal/store"
	"github.com/Tyrowin/gochat-rooms/internal/store/mongostore"
)

func main() {
	envConfig, err := server.NewConfigFromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration", "error", err)
		os.Exit(1)
	}
	server.SetConfig(envConfig)
	cfg := server.CurrentConfig()
	logger.Init(cfg.LogLevel)

	logger.Info("Starting GoChat server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, cfg)
	defer closeStore()

	notifier, closeNotifier := openNotifier(cfg)
	defer closeNotifier()

	if cfg.Auth.Secret == "" {
		logger.Warn("JWT_SECRET is empty, every session token will be rejected")
	}
	authenticator := auth.NewAuthenticator(auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer), st)

	engine := chat.NewEngine(st, notifier, chat.Options{
		TypingTTL:        cfg.TypingTTL,
		OperationTimeout: cfg.Mongo.OperationTimeout,
	})
	defer engine.Close()

	hub := server.NewHub(engine)
	server.StartHub(hub)

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, authenticator))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server failed", "error", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Warn("HTTP server did not shut down cleanly", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Hub did not shut down cleanly", "error", err)
	}
	logger.Info("GoChat server stopped")
}

// openStore connects to MongoDB when MONGO_URI is set and falls back to the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg server.Config) (chat.Store, func()) {
	if cfg.Mongo.URI == "" {
		logger.Warn("MONGO_URI is not set, using the in-memory store")
		return store.NewMemoryStore(), func() {}
	}

	mongo, err := mongostore.Connect(ctx, mongostore.Config{
		URI:              cfg.Mongo.URI,
		Database:         cfg.Mongo.Database,
		AppName:          "gochat",
		OperationTimeout: cfg.Mongo.OperationTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	return mongo, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := mongo.Close(closeCtx); err != nil {
			logger.Warn("Failed to close MongoDB client", "error", err)
		}
	}
}

func openNotifier(cfg server.Config) (chat.Notifier, func()) {
	if cfg.Redis.Addr == "" {
		return notify.LogNotifier{}, func() {}
	}

	notifier := notify.NewRedisNotifier(redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}), cfg.Redis.ChannelPrefix)
	return notifier, func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("Failed to close Redis client", "error", err)
		}
	}
}
