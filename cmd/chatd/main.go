package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/palaver-chat/palaver/internal/api"
	"github.com/palaver-chat/palaver/internal/api/middleware"
	"github.com/palaver-chat/palaver/internal/blob"
	"github.com/palaver-chat/palaver/internal/chat"
	"github.com/palaver-chat/palaver/internal/config"
	"github.com/palaver-chat/palaver/internal/gateway"
	"github.com/palaver-chat/palaver/internal/handlers"
	"github.com/palaver-chat/palaver/internal/identity"
	"github.com/palaver-chat/palaver/internal/rtstore"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Realtime store: Redis when configured, in-memory otherwise
	var (
		store       rtstore.Store
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisStore, err := rtstore.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		go redisStore.RunSweeper(ctx, cfg.SweepInterval, logger)
		store = redisStore
		redisClient = redisStore.Client()
		logger.Info().Msg("connected to Redis")
	} else {
		store = rtstore.NewMemory().Connect("chatd")
		logger.Warn().Msg("REDIS_URL not set, using in-memory realtime store")
	}

	// Account store: Postgres when configured, SQLite otherwise
	var accounts identity.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := identity.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		accounts = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := identity.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		accounts = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite account store")
	}
	defer accounts.Close()

	// Chat services share the server's store session
	log := chat.NewMessageLog(store, logger)
	groups := chat.NewGroupManager(store, log, logger)
	typing := chat.NewTypingChannel(store, logger)
	presence := chat.NewPresenceTracker(store, logger)
	contacts := chat.NewContactList(store, logger)

	blobs := blob.NewHTTPStore(cfg.BlobBaseURL, cfg.BlobBucket, cfg.BlobAPIKey, logger)

	h := &handlers.Handler{
		Identity: identity.NewService(accounts, logger),
		Accounts: accounts,
		Store:    store,
		Log:      log,
		Groups:   groups,
		Presence: presence,
		Contacts: contacts,
		Blobs:    blobs,
		Tokens:   middleware.NewTokenStore(),
		Logger:   logger,
	}
	gw := gateway.New(log, typing, presence, logger)

	router := api.NewRouter(logger, h, gw, redisClient)

	// Read/write timeouts stay unset: the gateway holds websocket
	// connections open far longer than any sane request timeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting palaver server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
