package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/ingest"
)

// Store wraps database access helpers. It implements ingest.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const sensorColumns = `id, sensor_index, name, latitude, longitude, type, device_id, created_at`

func scanSensor(row pgx.Row) (*ingest.Sensor, error) {
	var sensor ingest.Sensor
	var sensorType string
	if err := row.Scan(
		&sensor.ID,
		&sensor.SensorIndex,
		&sensor.Name,
		&sensor.Latitude,
		&sensor.Longitude,
		&sensorType,
		&sensor.DeviceID,
		&sensor.CreatedAt,
	); err != nil {
		return nil, err
	}
	sensor.Type = catalog.ProviderType(sensorType)
	return &sensor, nil
}

// SensorByIndex returns the persisted sensor for an external index, or nil
// when none exists.
func (s *Store) SensorByIndex(ctx context.Context, sensorIndex int) (*ingest.Sensor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sensorColumns+` FROM envirodash.sensors WHERE sensor_index = $1`,
		sensorIndex)

	sensor, err := scanSensor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sensor, nil
}

// SensorsByType lists the persisted sensors of one provider.
func (s *Store) SensorsByType(ctx context.Context, t catalog.ProviderType) ([]ingest.Sensor, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sensorColumns+` FROM envirodash.sensors WHERE type = $1 ORDER BY sensor_index`,
		string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sensors := make([]ingest.Sensor, 0)
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, *sensor)
	}
	return sensors, rows.Err()
}

const insertSensorSQL = `
INSERT INTO envirodash.sensors (sensor_index, name, latitude, longitude, type, device_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (sensor_index) DO NOTHING
RETURNING ` + sensorColumns

// InsertSensor creates the persisted identity for a catalog entry. Returns
// ingest.ErrSensorExists when a concurrent creator already inserted the row,
// so the caller can re-read instead of failing.
func (s *Store) InsertSensor(ctx context.Context, entry catalog.Entry) (*ingest.Sensor, error) {
	row := s.pool.QueryRow(ctx, insertSensorSQL,
		entry.SensorIndex,
		entry.Name,
		entry.Latitude,
		entry.Longitude,
		string(entry.Type),
		entry.DeviceID,
	)

	sensor, err := scanSensor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// DO NOTHING suppressed the insert: someone else won the race.
		return nil, ingest.ErrSensorExists
	}
	if err != nil {
		return nil, err
	}
	return sensor, nil
}

const insertPurpleAirReadingSQL = `
INSERT INTO envirodash.purpleair_readings (sensor_id, ts, temperature, humidity, pressure, pm25)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (sensor_id, ts) DO NOTHING`

const insertAcuRiteReadingSQL = `
INSERT INTO envirodash.acurite_readings (sensor_id, ts, temperature, humidity, wind_speed, wind_direction, pressure, rainfall)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (sensor_id, ts) DO NOTHING`

// InsertReadings upserts a batch one row at a time so a bad row cannot abort
// the rest. Duplicate (sensor_id, ts) keys are absorbed by the unique
// constraint; re-ingesting an overlapping window is a no-op for rows already
// stored. Returns the count of rows actually inserted.
func (s *Store) InsertReadings(ctx context.Context, t catalog.ProviderType, sensorID int64, readings []ingest.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	inserted := 0
	for _, r := range readings {
		var tag pgconn.CommandTag
		var err error
		switch t {
		case catalog.ProviderPurpleAir:
			tag, err = s.pool.Exec(ctx, insertPurpleAirReadingSQL,
				sensorID, r.Timestamp, r.Temperature, r.Humidity, r.Pressure, r.PM25)
		case catalog.ProviderAcuRite:
			tag, err = s.pool.Exec(ctx, insertAcuRiteReadingSQL,
				sensorID, r.Timestamp, r.Temperature, r.Humidity, r.WindSpeed, r.WindDirection, r.Pressure, r.Rainfall)
		default:
			return inserted, fmt.Errorf("unknown provider type %q", t)
		}
		if err != nil {
			s.logger.Warn("reading insert failed, skipping row",
				"sensor_id", sensorID, "ts", r.Timestamp, "error", err)
			continue
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

const latestPurpleAirSQL = `
SELECT sensor_id, ts, temperature, humidity, pressure, pm25
FROM envirodash.purpleair_readings
WHERE sensor_id = $1
ORDER BY ts DESC
LIMIT $2`

const latestAcuRiteSQL = `
SELECT sensor_id, ts, temperature, humidity, wind_speed, wind_direction, pressure, rainfall
FROM envirodash.acurite_readings
WHERE sensor_id = $1
ORDER BY ts DESC
LIMIT $2`

// LatestReadings returns the most recent stored readings for a sensor,
// newest first.
func (s *Store) LatestReadings(ctx context.Context, t catalog.ProviderType, sensorID int64, limit int) ([]ingest.StoredReading, error) {
	var query string
	switch t {
	case catalog.ProviderPurpleAir:
		query = latestPurpleAirSQL
	case catalog.ProviderAcuRite:
		query = latestAcuRiteSQL
	default:
		return nil, fmt.Errorf("unknown provider type %q", t)
	}

	rows, err := s.pool.Query(ctx, query, sensorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]ingest.StoredReading, 0, limit)
	for rows.Next() {
		var r ingest.StoredReading
		if t == catalog.ProviderPurpleAir {
			err = rows.Scan(&r.SensorID, &r.Timestamp, &r.Temperature, &r.Humidity, &r.Pressure, &r.PM25)
		} else {
			err = rows.Scan(&r.SensorID, &r.Timestamp, &r.Temperature, &r.Humidity, &r.WindSpeed, &r.WindDirection, &r.Pressure, &r.Rainfall)
		}
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

const seedSensorSQL = `
INSERT INTO envirodash.sensors (sensor_index, name, latitude, longitude, type, device_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
ON CONFLICT (sensor_index) DO NOTHING`

// SeedSensors loads the whole catalog into the sensors table at startup,
// leaving already-registered rows untouched.
func (s *Store) SeedSensors(ctx context.Context, entries []catalog.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(seedSensorSQL, e.SensorIndex, e.Name, e.Latitude, e.Longitude, string(e.Type), e.DeviceID)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range entries {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}
