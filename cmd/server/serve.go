package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mindsync-backend/internal/config"
	"mindsync-backend/internal/database"
	"mindsync-backend/internal/handlers"
	"mindsync-backend/internal/logger"
	"mindsync-backend/internal/middleware"
	"mindsync-backend/internal/router"
	"mindsync-backend/internal/services"
	"mindsync-backend/internal/websocket"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.LogDebug)
	defer log.Sync()

	log.Info("starting MindSync chat relay",
		zap.String("env", cfg.Env),
		zap.String("backend", cfg.GeminiBackend),
		zap.String("model", cfg.GeminiModel),
	)

	// ──── Step 2: Initialize Gemini Backend ────
	generator, closeGenerator, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("gemini backend: %w", err)
	}
	defer closeGenerator()

	relay := services.NewChatRelay(generator, cfg.UpstreamTimeout, log.Named("relay"))

	// ──── Step 3: Optional Caller Identity & Rate Limiting ────
	var jwtAuth *middleware.JWTAuth
	if cfg.JWTSecret != "" {
		jwtAuth = middleware.NewJWTAuth(cfg.JWTSecret)
		log.Info("bearer token verification enabled")
	}

	var limiter middleware.Limiter
	if cfg.RateLimitPerMin > 0 {
		if cfg.RedisURL != "" {
			redisClient, err := database.NewRedisClient(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			defer redisClient.Close()
			limiter = middleware.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMin, time.Minute)
			log.Info("redis rate limiter enabled", zap.Int("per_minute", cfg.RateLimitPerMin))
		} else {
			memLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
			defer memLimiter.Close()
			limiter = memLimiter
			log.Info("in-memory rate limiter enabled", zap.Int("per_minute", cfg.RateLimitPerMin))
		}
	}

	// ──── Step 4: Handlers & Router ────
	chatHandler := handlers.NewChatHandler(relay, cfg.MaxBodyBytes, log.Named("chat"))
	wsHub := websocket.NewHub(relay, jwtAuth, limiter, cfg.MaxBodyBytes, log.Named("ws"))

	r := router.New(chatHandler, wsHub, jwtAuth, limiter, cfg.CORSAllowedOrigin, cfg.TrustProxyHeaders, log.Named("http"))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	server.RegisterOnShutdown(wsHub.CloseAll)

	// ──── Step 5: Serve Until Signalled ────
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("chat relay ready", zap.String("addr", server.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.UpstreamTimeout+5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
