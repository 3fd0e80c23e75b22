package ingest_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/ingest"
)

type readingKey struct {
	provider catalog.ProviderType
	sensorID int64
	ts       time.Time
}

// fakeStore is an in-memory ingest.Store that enforces the same uniqueness
// rules as the relational schema: one sensor per sensor_index and one reading
// per (sensor_id, ts).
type fakeStore struct {
	mu      sync.Mutex
	nextID  int64
	sensors map[int]ingest.Sensor
	rows    map[readingKey]ingest.Reading

	insertSensorCalls   int
	insertReadingsCalls int

	lookupErr  error
	insertErr  error
	readingErr error
	latestErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sensors: make(map[int]ingest.Sensor),
		rows:    make(map[readingKey]ingest.Reading),
	}
}

func (f *fakeStore) SensorByIndex(_ context.Context, sensorIndex int) (*ingest.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	s, ok := f.sensors[sensorIndex]
	if !ok {
		return nil, nil
	}
	out := s
	return &out, nil
}

func (f *fakeStore) SensorsByType(_ context.Context, t catalog.ProviderType) ([]ingest.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ingest.Sensor
	for _, s := range f.sensors {
		if s.Type == t {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorIndex < out[j].SensorIndex })
	return out, nil
}

func (f *fakeStore) InsertSensor(_ context.Context, entry catalog.Entry) (*ingest.Sensor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertSensorCalls++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if _, ok := f.sensors[entry.SensorIndex]; ok {
		return nil, ingest.ErrSensorExists
	}
	f.nextID++
	s := ingest.Sensor{
		ID:          f.nextID,
		SensorIndex: entry.SensorIndex,
		Name:        entry.Name,
		Latitude:    entry.Latitude,
		Longitude:   entry.Longitude,
		Type:        entry.Type,
		DeviceID:    entry.DeviceID,
		CreatedAt:   time.Now().UTC(),
	}
	f.sensors[entry.SensorIndex] = s
	out := s
	return &out, nil
}

func (f *fakeStore) InsertReadings(_ context.Context, t catalog.ProviderType, sensorID int64, readings []ingest.Reading) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertReadingsCalls++
	if f.readingErr != nil {
		return 0, f.readingErr
	}
	inserted := 0
	for _, r := range readings {
		key := readingKey{provider: t, sensorID: sensorID, ts: r.Timestamp}
		if _, ok := f.rows[key]; ok {
			continue
		}
		f.rows[key] = r
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) LatestReadings(_ context.Context, t catalog.ProviderType, sensorID int64, limit int) ([]ingest.StoredReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	out := []ingest.StoredReading{}
	for key, r := range f.rows {
		if key.provider != t || key.sensorID != sensorID {
			continue
		}
		out = append(out, ingest.StoredReading{
			SensorID:      sensorID,
			Timestamp:     r.Timestamp,
			Temperature:   r.Temperature,
			Humidity:      r.Humidity,
			Pressure:      r.Pressure,
			PM25:          r.PM25,
			WindSpeed:     r.WindSpeed,
			WindDirection: r.WindDirection,
			Rainfall:      r.Rainfall,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeStore) sensorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sensors)
}
