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

	"github.com/lushlocks/chat-service/internal/api"
	"github.com/lushlocks/chat-service/internal/api/middleware"
	"github.com/lushlocks/chat-service/internal/chat"
	"github.com/lushlocks/chat-service/internal/config"
	"github.com/lushlocks/chat-service/internal/events"
	"github.com/lushlocks/chat-service/internal/gateway"
	"github.com/lushlocks/chat-service/internal/handlers"
	"github.com/lushlocks/chat-service/internal/llm"
	"github.com/lushlocks/chat-service/internal/prompt"
	"github.com/lushlocks/chat-service/internal/store"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the conversation store: PostgreSQL when configured,
	// SQLite otherwise
	var st store.ConversationStore
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		st = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		st = sqliteStore
		logger.Info().Msg("using SQLite store")
	}
	defer st.Close()

	// System prompt builder, fed by catalog updates when Redis is present
	prompts := prompt.NewBuilder()

	// Initialize Redis: domain event bus, catalog feed and rate limiting
	var redisClient *redis.Client
	var bus events.Publisher = events.NopPublisher{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisClient.Close()
		logger.Info().Msg("connected to Redis")

		bus = events.NewRedisPublisher(redisClient, logger)

		listener := events.NewCatalogListener(redisClient, prompts, logger)
		go listener.Run(ctx)
	}

	// LLM client
	generator := llm.NewClient(llm.Config{
		APIURL:    cfg.LLMAPIURL,
		APIKey:    cfg.LLMAPIKey,
		Model:     cfg.LLMModel,
		MaxTokens: cfg.LLMMaxTokens,
	}, prompts, logger)

	// Conversation service and realtime gateway
	svc := chat.NewService(st, bus, logger)
	hub := gateway.NewHub()
	gw := gateway.New(hub, svc, generator, logger)

	// HTTP layer
	auth := middleware.NewAdminAuth(cfg.AdminTokenHash)
	h := handlers.NewHandler(svc, st, redisClient, auth)
	router := api.NewRouter(logger, h, gw, auth, redisClient)

	// Create server. No WriteTimeout: websocket connections are long-lived
	// and hijacked past the server's control anyway.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")
	cancel()

	// Graceful shutdown with 30 second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
