package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/edulane/insights-api/internal/config"
	"github.com/edulane/insights-api/internal/database"
	"github.com/edulane/insights-api/internal/logger"
	"github.com/edulane/insights-api/internal/queue"
	"github.com/edulane/insights-api/internal/services/analytics"
	"github.com/edulane/insights-api/internal/workers"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()

	if cfg.RabbitMQURL == "" {
		zapLogger.Fatal("rabbitmq_url_required_for_worker")
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		zapLogger.Fatal("failed_to_load_policy", zap.Error(err))
	}

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.Strings("range_keys", policy.Ranges.Keys()),
	)

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	eventRepo := database.NewEventRepository(db)
	snapshotRepo := database.NewSnapshotRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	aggregator := analytics.NewAggregator(eventRepo, snapshotRepo, policy.Ranges, policy.EventLoadLimit, zapLogger)
	prewarmer := workers.NewSnapshotPrewarmer(aggregator, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := prewarmer.Run(ctx, jobQueue, cfg.RabbitMQPrefetch); err != nil && err != context.Canceled {
			zapLogger.Error("worker_run_stopped", zap.Error(err))
		}
	}()

	zapLogger.Info("worker_started")

	<-sigChan
	zapLogger.Info("worker_shutting_down")
	cancel()

	zapLogger.Info("worker_stopped")
}
