package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/observability"
	"github.com/envirodash/envirodash-api/internal/providers"
)

const (
	defaultPurpleAirHistoryLimit = 144 // ~24h at 10-minute averages
	defaultAcuRiteHistoryLimit   = 168 // 7 days of hourly summaries
	defaultLookbackWindow        = 6 * time.Hour
	defaultAverageMinutes        = 10
	defaultFieldList             = "temperature, humidity, pm2.5_alt, pressure"
)

// PurpleAirAPI is the upstream port for the PurpleAir history endpoint.
type PurpleAirAPI interface {
	History(ctx context.Context, sensorIndex int, q providers.HistoryQuery) (providers.PurpleAirPayload, error)
}

// AcuRiteAPI is the upstream port for the AcuRite hourly-summary endpoint.
type AcuRiteAPI interface {
	HourlySummaries(ctx context.Context, deviceID, date string) (providers.AcuRitePayload, error)
}

// Options tunes the orchestrator per deployment. Zero values take the
// defaults above.
type Options struct {
	PurpleAirHistoryLimit int
	AcuRiteHistoryLimit   int
	LookbackWindow        time.Duration
	DefaultAverage        int
	DefaultFields         string

	// AlwaysFetchFresh keeps the no-cache policy explicit: every request hits
	// the upstream provider before reading back stored data. When false only
	// the stored window is served.
	AlwaysFetchFresh bool
}

func (o Options) withDefaults() Options {
	if o.PurpleAirHistoryLimit <= 0 {
		o.PurpleAirHistoryLimit = defaultPurpleAirHistoryLimit
	}
	if o.AcuRiteHistoryLimit <= 0 {
		o.AcuRiteHistoryLimit = defaultAcuRiteHistoryLimit
	}
	if o.LookbackWindow <= 0 {
		o.LookbackWindow = defaultLookbackWindow
	}
	if o.DefaultAverage <= 0 {
		o.DefaultAverage = defaultAverageMinutes
	}
	if o.DefaultFields == "" {
		o.DefaultFields = defaultFieldList
	}
	return o
}

// Service coordinates one fresh-data cycle per request: fetch live data,
// normalize it, persist it idempotently, and read back the stored window.
// Each stage degrades independently; only an unknown sensor aborts.
type Service struct {
	catalog  *catalog.Catalog
	store    Store
	registry *Registry
	purple   PurpleAirAPI
	acurite  AcuRiteAPI
	opts     Options
	metrics  *observability.Metrics
	logger   *slog.Logger
	clock    clockwork.Clock
}

// NewService wires the orchestrator. A nil clock falls back to real time.
func NewService(
	cat *catalog.Catalog,
	store Store,
	purple PurpleAirAPI,
	acurite AcuRiteAPI,
	opts Options,
	metrics *observability.Metrics,
	logger *slog.Logger,
	clock clockwork.Clock,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		catalog:  cat,
		store:    store,
		registry: NewRegistry(store, logger),
		purple:   purple,
		acurite:  acurite,
		opts:     opts.withDefaults(),
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
	}
}

// FreshDataRequest identifies one sensor and its provider-specific window
// parameters. Zero values mean "use the configured defaults".
type FreshDataRequest struct {
	SensorIndex    int
	Provider       catalog.ProviderType
	StartTimestamp int64  // PurpleAir: epoch seconds; 0 = now minus lookback window
	Average        int    // PurpleAir: averaging interval in minutes
	Fields         string // PurpleAir: comma-separated field list
	Date           string // AcuRite: YYYY-MM-DD; "" = today (UTC)
}

// FreshDataResult combines the best-effort raw live payload with the
// authoritative stored window.
type FreshDataResult struct {
	Live        any             `json:"live"`
	Historical  []StoredReading `json:"historical"`
	Timestamp   time.Time       `json:"timestamp"`
	SensorIndex int             `json:"sensor_index"`
}

// FreshData runs the fetch → normalize → persist → read-back cycle. It only
// fails for a sensor_index absent from the catalog; every other stage failure
// degrades to empty data so the request still serves whatever is available.
func (s *Service) FreshData(ctx context.Context, req FreshDataRequest) (FreshDataResult, error) {
	entry, ok := s.catalog.ByIndex(req.SensorIndex, req.Provider)
	if !ok {
		return FreshDataResult{}, ErrUnknownSensor
	}

	var live any
	var readings []Reading

	if s.opts.AlwaysFetchFresh {
		switch entry.Type {
		case catalog.ProviderPurpleAir:
			payload := s.fetchPurpleAir(ctx, req)
			live = payload
			readings = NormalizePurpleAir(payload)
		case catalog.ProviderAcuRite:
			payload := s.fetchAcuRite(ctx, entry, req)
			live = payload
			readings = NormalizeAcuRite(payload)
		}
	} else if entry.Type == catalog.ProviderPurpleAir {
		live = providers.EmptyPurpleAirPayload()
	} else {
		live = providers.EmptyAcuRitePayload()
	}

	sensor := s.persist(ctx, entry, readings)
	historical := s.readBack(ctx, sensor, entry)

	return FreshDataResult{
		Live:        live,
		Historical:  historical,
		Timestamp:   s.clock.Now().UTC(),
		SensorIndex: req.SensorIndex,
	}, nil
}

func (s *Service) fetchPurpleAir(ctx context.Context, req FreshDataRequest) providers.PurpleAirPayload {
	q := providers.HistoryQuery{
		StartTimestamp: req.StartTimestamp,
		Average:        req.Average,
		Fields:         req.Fields,
	}
	if q.StartTimestamp == 0 {
		q.StartTimestamp = s.clock.Now().UTC().Add(-s.opts.LookbackWindow).Unix()
	}
	if q.Average == 0 {
		q.Average = s.opts.DefaultAverage
	}
	if q.Fields == "" {
		q.Fields = s.opts.DefaultFields
	}

	start := s.clock.Now()
	payload, err := s.purple.History(ctx, req.SensorIndex, q)
	s.metrics.ObserveFetch(string(catalog.ProviderPurpleAir), s.clock.Since(start), err)
	if err != nil {
		s.logger.Warn("purpleair fetch failed, serving stored data only",
			"sensor_index", req.SensorIndex, "error", err)
		return providers.EmptyPurpleAirPayload()
	}
	return payload
}

func (s *Service) fetchAcuRite(ctx context.Context, entry catalog.Entry, req FreshDataRequest) providers.AcuRitePayload {
	if entry.DeviceID == nil || *entry.DeviceID == "" {
		s.logger.Warn("acurite sensor has no device handle, skipping fetch",
			"sensor_index", entry.SensorIndex)
		return providers.EmptyAcuRitePayload()
	}

	date := req.Date
	if date == "" {
		date = s.clock.Now().UTC().Format("2006-01-02")
	}

	start := s.clock.Now()
	payload, err := s.acurite.HourlySummaries(ctx, *entry.DeviceID, date)
	s.metrics.ObserveFetch(string(catalog.ProviderAcuRite), s.clock.Since(start), err)
	if err != nil {
		s.logger.Warn("acurite fetch failed, serving stored data only",
			"sensor_index", entry.SensorIndex, "error", err)
		return providers.EmptyAcuRitePayload()
	}
	return payload
}

// persist resolves the sensor identity and writes the batch. An empty batch
// never touches the store, so no identity is created just to write nothing.
// Returns the resolved sensor when available for reuse by the read-back.
func (s *Service) persist(ctx context.Context, entry catalog.Entry, readings []Reading) *Sensor {
	if len(readings) == 0 {
		return nil
	}

	sensor, err := s.registry.Resolve(ctx, entry)
	if err != nil {
		s.logger.Error("sensor resolution failed, serving live data only",
			"sensor_index", entry.SensorIndex, "error", err)
		return nil
	}

	inserted, err := s.store.InsertReadings(ctx, entry.Type, sensor.ID, readings)
	if err != nil {
		s.logger.Error("persist failed, dropping batch",
			"sensor_index", entry.SensorIndex, "submitted", len(readings), "error", err)
		return sensor
	}

	s.metrics.ObservePersist(string(entry.Type), len(readings), inserted)
	s.logger.Info("persisted readings",
		"sensor_index", entry.SensorIndex, "submitted", len(readings), "inserted", inserted)
	return sensor
}

// readBack fetches the stored window. Any failure here yields an empty
// window, never a request error.
func (s *Service) readBack(ctx context.Context, sensor *Sensor, entry catalog.Entry) []StoredReading {
	if sensor == nil {
		var err error
		sensor, err = s.store.SensorByIndex(ctx, entry.SensorIndex)
		if err != nil {
			s.logger.Warn("historical lookup failed, returning empty window",
				"sensor_index", entry.SensorIndex, "error", err)
			return []StoredReading{}
		}
		if sensor == nil {
			return []StoredReading{}
		}
	}

	limit := s.opts.PurpleAirHistoryLimit
	if entry.Type == catalog.ProviderAcuRite {
		limit = s.opts.AcuRiteHistoryLimit
	}

	stored, err := s.store.LatestReadings(ctx, entry.Type, sensor.ID, limit)
	if err != nil {
		s.logger.Warn("historical read failed, returning empty window",
			"sensor_index", entry.SensorIndex, "error", err)
		return []StoredReading{}
	}
	if stored == nil {
		stored = []StoredReading{}
	}
	return stored
}
