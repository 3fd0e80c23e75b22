package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/envirodash/envirodash-api/internal/catalog"
)

// Registry resolves catalog entries to persisted sensor identities, creating
// one lazily on first successful ingestion.
type Registry struct {
	store  Store
	logger *slog.Logger
}

// NewRegistry builds a registry over the given store.
func NewRegistry(store Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// Resolve returns the persisted sensor for a catalog entry. When two requests
// race on first contact, the insert loser re-reads the winner's row instead of
// failing, so concurrent resolution always converges on one surrogate id.
func (r *Registry) Resolve(ctx context.Context, entry catalog.Entry) (*Sensor, error) {
	sensor, err := r.store.SensorByIndex(ctx, entry.SensorIndex)
	if err != nil {
		return nil, fmt.Errorf("lookup sensor %d: %w", entry.SensorIndex, err)
	}
	if sensor != nil {
		return sensor, nil
	}

	sensor, err = r.store.InsertSensor(ctx, entry)
	if errors.Is(err, ErrSensorExists) {
		sensor, err = r.store.SensorByIndex(ctx, entry.SensorIndex)
		if err != nil {
			return nil, fmt.Errorf("re-read sensor %d after conflict: %w", entry.SensorIndex, err)
		}
		if sensor == nil {
			return nil, fmt.Errorf("sensor %d missing after insert conflict", entry.SensorIndex)
		}
		return sensor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert sensor %d: %w", entry.SensorIndex, err)
	}

	r.logger.Info("registered sensor", "sensor_index", entry.SensorIndex, "type", entry.Type)
	return sensor, nil
}
