package main

import (
	"go.uber.org/zap"

	"github.com/davekhr/telemetry-dashboard/internal/broadcast"
	"github.com/davekhr/telemetry-dashboard/internal/config"
	"github.com/davekhr/telemetry-dashboard/internal/httpserver"
	"github.com/davekhr/telemetry-dashboard/internal/ingest"
	"github.com/davekhr/telemetry-dashboard/internal/store"
	"github.com/davekhr/telemetry-dashboard/internal/tracker"
)

// main boots the service: config → DB → schema → pipeline → HTTP server.
func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load runtime config from environment (DB_URL, SHARED_SECRET, ...).
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Ensure required tables exist so `docker compose up --build` is enough.
	if err := db.EnsureSchema(); err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	// Sequence state is process-local: every device starts over as
	// first-seen after a restart, while packet history stays in the store.
	tr := tracker.New()
	bc := broadcast.New()
	svc := ingest.NewService(tr, db, bc, logger)

	router := httpserver.NewRouter(cfg, db, svc, bc)

	logger.Info("server started", zap.String("addr", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
