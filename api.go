package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"codform/internal/api"
	"codform/internal/config"
	"codform/internal/database"
	"codform/internal/events"
	"codform/internal/logger"
)

var (
	once    sync.Once
	server  *api.Server
	initErr error
)

// setup builds the service once per function instance. Serverless
// instances have no worker, so orders are synced inline unless Kafka is
// configured.
func setup() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	log := logger.New(cfg.LogLevel)

	db, err := database.New(cfg.DatabaseURL, false)
	if err != nil {
		initErr = fmt.Errorf("database initialization failed: %w", err)
		return
	}

	var publisher events.Publisher = events.Nop{}
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		publisher = events.NewKafkaPublisher(brokers, cfg.KafkaTopic, log)
	}

	server, initErr = api.New(cfg, log, db, publisher)
	if initErr == nil {
		go server.RunSessions(context.Background())
	}
}

// Handler is the main entry point for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		http.Error(w, initErr.Error(), http.StatusInternalServerError)
		return
	}
	server.Handler().ServeHTTP(w, r)
}
