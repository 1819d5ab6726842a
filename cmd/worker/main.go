package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courier/internal/config"
	"courier/internal/domain/notification"
	"courier/internal/infra/queue"
	"courier/internal/infra/store"
	"courier/internal/wiring"

	"github.com/hibiken/asynq"
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

	slog.Info("worker configuration loaded")

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

	if cfg.Supabase.URL != "" {
		directory, err := store.NewSupabaseDirectory(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			slog.Error("failed to initialize supabase directory", "error", err)
			os.Exit(1)
		}
		opts = append(opts, notification.WithDirectory(directory))
		slog.Info("recipient directory initialized")
	}

	dispatcher := notification.NewDispatcher(notification.WithLogger(logger))
	notificationService := notification.NewService(dispatcher, providers, notification.ServiceConfig{
		Policy:        policy,
		MaxConcurrent: cfg.Delivery.MaxConcurrent,
	}, opts...)

	validateCtx, validateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	status := notificationService.Status(validateCtx)
	validateCancel()
	slog.Info("provider validation finished",
		"available", status.Available,
		"total", status.Total,
		"service_status", status.Status,
	)

	// Delivery Worker
	deliveryWorker := notification.NewWorker(notificationService, logger)

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
		time.Duration(cfg.Queue.RetryDelaySec)*time.Second,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TaskTypeDeliver, notification.HandleDeliverTask(deliveryWorker))

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
