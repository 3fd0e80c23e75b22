package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/envirodash/envirodash-api/internal/catalog"
)

var (
	// ErrUnknownSensor marks a sensor_index that is absent from the catalog.
	// It is the only pipeline failure surfaced to callers as not-found.
	ErrUnknownSensor = errors.New("unknown sensor")

	// ErrSensorExists is returned by Store.InsertSensor when a concurrent
	// resolver already created the row for the same sensor_index.
	ErrSensorExists = errors.New("sensor already exists")
)

// Reading is the canonical provider-agnostic record of one sensor's
// measurements at one instant. Fields a provider does not report stay nil.
type Reading struct {
	Timestamp     time.Time
	Temperature   *float64
	Humidity      *float64
	Pressure      *float64
	PM25          *float64
	WindSpeed     *float64
	WindDirection *float64
	Rainfall      *float64
}

// HasData reports whether at least one measurement field is set. A reading
// with no data is invalid and never persisted.
func (r Reading) HasData() bool {
	return r.Temperature != nil ||
		r.Humidity != nil ||
		r.Pressure != nil ||
		r.PM25 != nil ||
		r.WindSpeed != nil ||
		r.WindDirection != nil ||
		r.Rainfall != nil
}

// Sensor is the persisted identity of a catalog entry: a surrogate id plus a
// denormalized copy of the catalog metadata at creation time.
type Sensor struct {
	ID          int64                `json:"id"`
	SensorIndex int                  `json:"sensor_index"`
	Name        string               `json:"name"`
	Latitude    float64              `json:"latitude"`
	Longitude   float64              `json:"longitude"`
	Type        catalog.ProviderType `json:"type"`
	DeviceID    *string              `json:"device_id,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// StoredReading is a persisted reading as returned to callers in the
// historical window.
type StoredReading struct {
	SensorID      int64     `json:"sensor_id"`
	Timestamp     time.Time `json:"timestamp"`
	Temperature   *float64  `json:"temperature"`
	Humidity      *float64  `json:"humidity"`
	Pressure      *float64  `json:"pressure"`
	PM25          *float64  `json:"pm25,omitempty"`
	WindSpeed     *float64  `json:"wind_speed,omitempty"`
	WindDirection *float64  `json:"wind_direction,omitempty"`
	Rainfall      *float64  `json:"rainfall,omitempty"`
}

// Store is the persistence port for sensor identities and readings. The
// relational unique constraints behind InsertSensor and InsertReadings are the
// pipeline's only concurrency control.
type Store interface {
	// SensorByIndex returns the persisted sensor for an external index, or
	// nil when none exists yet.
	SensorByIndex(ctx context.Context, sensorIndex int) (*Sensor, error)

	// SensorsByType lists the persisted sensors of one provider.
	SensorsByType(ctx context.Context, t catalog.ProviderType) ([]Sensor, error)

	// InsertSensor creates the persisted identity for a catalog entry,
	// returning ErrSensorExists on a sensor_index conflict.
	InsertSensor(ctx context.Context, entry catalog.Entry) (*Sensor, error)

	// InsertReadings upserts a batch into the provider's reading table with
	// duplicate (sensor_id, ts) rows silently skipped. Returns the count of
	// rows actually inserted.
	InsertReadings(ctx context.Context, t catalog.ProviderType, sensorID int64, readings []Reading) (int, error)

	// LatestReadings returns the most recent stored readings, newest first.
	LatestReadings(ctx context.Context, t catalog.ProviderType, sensorID int64, limit int) ([]StoredReading, error)
}
