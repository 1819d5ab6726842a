package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/config"
	"courier/internal/domain/notification"
	"courier/internal/infra/idempotency"
	"courier/internal/infra/queue"
	"courier/internal/infra/store"
	"courier/internal/middleware"
	"courier/internal/router"
	"courier/internal/wiring"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	policy, err := cfg.DeliveryPolicy()
	if err != nil {
		slog.Error("invalid delivery policy", "error", err)
		os.Exit(1)
	}

	providers, err := wiring.BuildProviders(cfg, logger)
	if err != nil {
		slog.Error("failed to configure providers", "error", err)
		os.Exit(1)
	}

	opts := []notification.ServiceOption{notification.WithServiceLogger(logger)}

	// Supabase recipient directory (optional)
	if cfg.Supabase.URL != "" {
		directory, err := store.NewSupabaseDirectory(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			slog.Error("failed to initialize supabase directory", "error", err)
			os.Exit(1)
		}
		opts = append(opts, notification.WithDirectory(directory))
		slog.Info("recipient directory initialized")
	}

	// Asynq Client (for enqueuing tasks)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	opts = append(opts, notification.WithEnqueuer(queue.NewEnqueuer(asynqClient, cfg.Queue.MaxRetry)))
	slog.Info("asynq client initialized", "redis", cfg.Redis.Address)

	// Idempotency guard
	guard := idempotency.NewRedisGuard(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Delivery.IdempotencyTTLSec)*time.Second,
	)
	defer guard.Close()
	opts = append(opts, notification.WithIdempotencyGuard(guard))

	// Service
	dispatcher := notification.NewDispatcher(notification.WithLogger(logger))
	notificationService := notification.NewService(dispatcher, providers, notification.ServiceConfig{
		Policy:        policy,
		MaxConcurrent: cfg.Delivery.MaxConcurrent,
	}, opts...)

	// Validate providers once at startup so /status is served from cache.
	validateCtx, validateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	status := notificationService.Status(validateCtx)
	validateCancel()
	slog.Info("provider validation finished",
		"available", status.Available,
		"total", status.Total,
		"service_status", status.Status,
	)

	// Handler
	notificationHandler := notification.NewHandler(notificationService)

	// API rate limiter
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go rateLimiter.RunCleanup(cleanupCtx, time.Minute, 10*time.Minute)

	// Router
	r := router.New(cfg, notificationHandler, rateLimiter, logger)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous bulk sends can run long
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
