package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"codform/internal/config"
	"codform/internal/database"
	"codform/internal/logger"
	"codform/internal/services/fraud"
	"codform/internal/services/orders"
	"codform/internal/worker"
	"codform/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	defer logger.Sync()

	if len(cfg.KafkaBrokerList()) == 0 {
		logger.Fatal("KAFKA_BROKERS is required for the worker")
	}

	db, err := database.New(cfg.DatabaseURL, cfg.LogLevel == "debug")
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	processor := processors.NewEventProcessor(
		orders.NewSyncer(db.DB, orders.DefaultClientFactory(logger), logger),
		fraud.NewChecker(db.DB, logger),
		logger,
	)

	// Initialize worker
	w := worker.New(cfg, logger, processor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	// Start worker
	logger.Info("Starting worker...")
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	<-done
	w.Stop()
}
