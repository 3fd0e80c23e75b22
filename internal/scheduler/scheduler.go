package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/ingest"
)

// Scheduler periodically re-ingests every catalog sensor. Overlapping windows
// are safe: the writer's (sensor_id, ts) uniqueness makes repeated cycles
// converge on the same stored set.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *ingest.Service
	catalog   *catalog.Catalog
	interval  time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. An interval of zero disables scheduling.
func New(cat *catalog.Catalog, interval time.Duration, service *ingest.Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		service:   service,
		catalog:   cat,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the periodic refresh and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.logger.Info("background refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(s.refreshAll)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("background refresh scheduled", "interval", s.interval, "sensors", s.catalog.Len())
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) refreshAll() {
	for _, entry := range s.catalog.All() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		_, err := s.service.FreshData(ctx, ingest.FreshDataRequest{
			SensorIndex: entry.SensorIndex,
			Provider:    entry.Type,
		})
		cancel()
		if err != nil {
			s.logger.Warn("background refresh failed",
				"sensor_index", entry.SensorIndex, "error", err)
		}
	}
}
