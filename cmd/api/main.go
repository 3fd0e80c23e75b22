package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/config"
	"github.com/envirodash/envirodash-api/internal/db"
	httpserver "github.com/envirodash/envirodash-api/internal/http"
	"github.com/envirodash/envirodash-api/internal/ingest"
	"github.com/envirodash/envirodash-api/internal/observability"
	"github.com/envirodash/envirodash-api/internal/providers"
	"github.com/envirodash/envirodash-api/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("catalog load error", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog loaded", "sensors", cat.Len())

	store, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("db connection error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	seedCtx, cancelSeed := context.WithTimeout(ctx, 30*time.Second)
	if err := store.SeedSensors(seedCtx, cat.All()); err != nil {
		logger.Warn("sensor seed failed, continuing", "error", err)
	}
	cancelSeed()

	purple := providers.NewPurpleAirClient(cfg.PurpleAirBaseURL, cfg.PurpleAirAPIKey, cfg.PurpleAirTimeout, logger)
	acurite := providers.NewAcuRiteClient(cfg.AcuRiteBaseURL, cfg.AcuRiteTimeout, logger)

	svc := ingest.NewService(cat, store, purple, acurite, ingest.Options{
		PurpleAirHistoryLimit: cfg.PurpleAirHistoryLimit,
		AcuRiteHistoryLimit:   cfg.AcuRiteHistoryLimit,
		LookbackWindow:        cfg.LookbackWindow,
		DefaultAverage:        cfg.DefaultAverage,
		DefaultFields:         cfg.DefaultFields,
		AlwaysFetchFresh:      cfg.AlwaysFetchFresh,
	}, metrics, logger, clockwork.NewRealClock())

	sched := scheduler.New(cat, cfg.RefreshInterval, svc, logger)
	if err := sched.Start(); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	srv := httpserver.New(cfg, cat, store, svc, logger)
	logger.Info("REST API listening", "addr", cfg.ListenAddr())

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
