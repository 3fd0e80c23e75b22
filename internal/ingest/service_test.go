package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envirodash/envirodash-api/internal/catalog"
	"github.com/envirodash/envirodash-api/internal/ingest"
	"github.com/envirodash/envirodash-api/internal/observability"
	"github.com/envirodash/envirodash-api/internal/providers"
)

var testNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fakePurpleAir struct {
	payload providers.PurpleAirPayload
	err     error

	calls     int
	lastIndex int
	lastQuery providers.HistoryQuery
}

func (f *fakePurpleAir) History(_ context.Context, sensorIndex int, q providers.HistoryQuery) (providers.PurpleAirPayload, error) {
	f.calls++
	f.lastIndex = sensorIndex
	f.lastQuery = q
	if f.err != nil {
		return providers.EmptyPurpleAirPayload(), f.err
	}
	return f.payload, nil
}

type fakeAcuRite struct {
	payload providers.AcuRitePayload
	err     error

	calls      int
	lastDevice string
	lastDate   string
}

func (f *fakeAcuRite) HourlySummaries(_ context.Context, deviceID, date string) (providers.AcuRitePayload, error) {
	f.calls++
	f.lastDevice = deviceID
	f.lastDate = date
	if f.err != nil {
		return providers.EmptyAcuRitePayload(), f.err
	}
	return f.payload, nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensors.json")
	contents := `[
		{"sensor_index": 118475, "name": "Riverside Park", "latitude": 40.8, "longitude": -73.97, "type": "purpleair"},
		{"sensor_index": 2001, "name": "Community Garden", "latitude": 40.77, "longitude": -73.95, "type": "acurite", "device_id": "24C86E0A1B2C"},
		{"sensor_index": 2003, "name": "Orphan Station", "latitude": 40.71, "longitude": -74.0, "type": "acurite"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	cat, err := catalog.Load(path)
	require.NoError(t, err)
	return cat
}

func newTestService(t *testing.T, store ingest.Store, purple ingest.PurpleAirAPI, acurite ingest.AcuRiteAPI, opts ingest.Options) *ingest.Service {
	t.Helper()
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	clock := clockwork.NewFakeClockAt(testNow)
	return ingest.NewService(testCatalog(t), store, purple, acurite, opts, metrics, testLogger(), clock)
}

func purpleAirHistory(rows ...[]*float64) providers.PurpleAirPayload {
	return providers.PurpleAirPayload{
		Fields: []string{"time_stamp", "temperature", "humidity", "pressure", "pm2.5_alt"},
		Data:   rows,
	}
}

func TestFreshDataUnknownSensor(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, &fakePurpleAir{}, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	_, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 999})
	require.ErrorIs(t, err, ingest.ErrUnknownSensor)
	assert.Equal(t, 0, store.insertSensorCalls)
}

func TestFreshDataProviderScopedLookup(t *testing.T) {
	svc := newTestService(t, newFakeStore(), &fakePurpleAir{}, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	_, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{
		SensorIndex: 118475,
		Provider:    catalog.ProviderAcuRite,
	})
	require.ErrorIs(t, err, ingest.ErrUnknownSensor)
}

func TestFreshDataEmptyPayloadNeverTouchesStore(t *testing.T) {
	store := newFakeStore()
	purple := &fakePurpleAir{payload: providers.EmptyPurpleAirPayload()}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, 1, purple.calls)
	assert.Equal(t, 0, store.insertSensorCalls)
	assert.Equal(t, 0, store.insertReadingsCalls)
	assert.Empty(t, result.Historical)
	assert.Equal(t, testNow, result.Timestamp)
	assert.Equal(t, 118475, result.SensorIndex)
}

func TestFreshDataPersistsAndReadsBackNewestFirst(t *testing.T) {
	store := newFakeStore()
	purple := &fakePurpleAir{payload: purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
		[]*float64{fptr(1700000600), fptr(71), fptr(41), fptr(1011), fptr(9)},
	)}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	require.Len(t, result.Historical, 2)
	assert.Equal(t, time.Unix(1700000600, 0).UTC(), result.Historical[0].Timestamp)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), result.Historical[1].Timestamp)
	assert.Equal(t, 2, store.rowCount())
	assert.Equal(t, 1, store.sensorCount())
}

func TestFreshDataIngestTwiceIsIdempotent(t *testing.T) {
	store := newFakeStore()
	purple := &fakePurpleAir{payload: purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
		[]*float64{fptr(1700000600), fptr(71), fptr(41), fptr(1011), fptr(9)},
	)}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	req := ingest.FreshDataRequest{SensorIndex: 118475}
	_, err := svc.FreshData(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.FreshData(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, store.rowCount())
	assert.Equal(t, 1, store.sensorCount())
}

func TestFreshDataOverlappingWindowsUnion(t *testing.T) {
	store := newFakeStore()
	purple := &fakePurpleAir{payload: purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
		[]*float64{fptr(1700000600), fptr(71), fptr(41), fptr(1011), fptr(9)},
	)}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	req := ingest.FreshDataRequest{SensorIndex: 118475}
	_, err := svc.FreshData(context.Background(), req)
	require.NoError(t, err)

	purple.payload = purpleAirHistory(
		[]*float64{fptr(1700000600), fptr(71), fptr(41), fptr(1011), fptr(9)},
		[]*float64{fptr(1700001200), fptr(72), fptr(42), fptr(1010), fptr(10)},
	)
	result, err := svc.FreshData(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, store.rowCount())
	require.Len(t, result.Historical, 3)
	assert.Equal(t, time.Unix(1700001200, 0).UTC(), result.Historical[0].Timestamp)
}

func TestFreshDataFetchFailureDegradesToStored(t *testing.T) {
	store := newFakeStore()
	purple := &fakePurpleAir{err: errors.New("upstream 503")}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, providers.EmptyPurpleAirPayload(), result.Live)
	assert.Equal(t, 0, store.insertReadingsCalls)
	assert.Empty(t, result.Historical)
}

func TestFreshDataPurpleAirDefaults(t *testing.T) {
	purple := &fakePurpleAir{payload: providers.EmptyPurpleAirPayload()}
	svc := newTestService(t, newFakeStore(), purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	_, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, 118475, purple.lastIndex)
	assert.Equal(t, testNow.Add(-6*time.Hour).Unix(), purple.lastQuery.StartTimestamp)
	assert.Equal(t, 10, purple.lastQuery.Average)
	assert.Equal(t, "temperature, humidity, pm2.5_alt, pressure", purple.lastQuery.Fields)
}

func TestFreshDataPurpleAirOverrides(t *testing.T) {
	purple := &fakePurpleAir{payload: providers.EmptyPurpleAirPayload()}
	svc := newTestService(t, newFakeStore(), purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	_, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{
		SensorIndex:    118475,
		StartTimestamp: 1700000000,
		Average:        60,
		Fields:         "temperature",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1700000000), purple.lastQuery.StartTimestamp)
	assert.Equal(t, 60, purple.lastQuery.Average)
	assert.Equal(t, "temperature", purple.lastQuery.Fields)
}

func TestFreshDataAcuRiteDateDefaultsToToday(t *testing.T) {
	acurite := &fakeAcuRite{payload: providers.EmptyAcuRitePayload()}
	svc := newTestService(t, newFakeStore(), &fakePurpleAir{}, acurite, ingest.Options{AlwaysFetchFresh: true})

	_, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 2001})
	require.NoError(t, err)

	assert.Equal(t, 1, acurite.calls)
	assert.Equal(t, "24C86E0A1B2C", acurite.lastDevice)
	assert.Equal(t, "2026-08-30", acurite.lastDate)
}

func TestFreshDataAcuRiteMissingDeviceSkipsFetch(t *testing.T) {
	acurite := &fakeAcuRite{payload: providers.EmptyAcuRitePayload()}
	svc := newTestService(t, newFakeStore(), &fakePurpleAir{}, acurite, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 2003})
	require.NoError(t, err)

	assert.Equal(t, 0, acurite.calls)
	assert.Equal(t, providers.EmptyAcuRitePayload(), result.Live)
}

func TestFreshDataPersistFailureStillServesLive(t *testing.T) {
	store := newFakeStore()
	store.readingErr = errors.New("deadlock detected")
	payload := purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
	)
	purple := &fakePurpleAir{payload: payload}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err, "a failed write never fails the request")

	assert.Equal(t, payload, result.Live)
	assert.Equal(t, 1, store.insertReadingsCalls)
	assert.Equal(t, 0, store.rowCount(), "the batch is dropped")
	assert.Empty(t, result.Historical)
}

func TestFreshDataResolveFailureStillServesLive(t *testing.T) {
	payload := purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
	)

	t.Run("lookup error", func(t *testing.T) {
		store := newFakeStore()
		store.lookupErr = errors.New("connection reset")
		purple := &fakePurpleAir{payload: payload}
		svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

		result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
		require.NoError(t, err)

		assert.Equal(t, payload, result.Live)
		assert.Equal(t, 0, store.insertReadingsCalls, "nothing is persisted without an identity")
		assert.Empty(t, result.Historical)
	})

	t.Run("insert error", func(t *testing.T) {
		store := newFakeStore()
		store.insertErr = errors.New("permission denied")
		purple := &fakePurpleAir{payload: payload}
		svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

		result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
		require.NoError(t, err)

		assert.Equal(t, payload, result.Live)
		assert.Equal(t, 0, store.insertReadingsCalls)
		assert.Empty(t, result.Historical)
	})
}

func TestFreshDataReadBackFailureYieldsEmptyWindow(t *testing.T) {
	store := newFakeStore()
	store.latestErr = errors.New("query timeout")
	purple := &fakePurpleAir{payload: purpleAirHistory(
		[]*float64{fptr(1700000000), fptr(70), fptr(40), fptr(1012), fptr(8)},
	)}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: true})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, 1, store.rowCount(), "persist must still happen")
	assert.Empty(t, result.Historical)
}

func TestFreshDataHistoryLimitClamps(t *testing.T) {
	store := newFakeStore()
	rows := make([][]*float64, 5)
	for i := range rows {
		ts := float64(1700000000 + i*600)
		rows[i] = []*float64{fptr(ts), fptr(70), fptr(40), fptr(1012), fptr(8)}
	}
	purple := &fakePurpleAir{payload: purpleAirHistory(rows...)}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{
		AlwaysFetchFresh:      true,
		PurpleAirHistoryLimit: 3,
	})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, 5, store.rowCount())
	require.Len(t, result.Historical, 3)
	assert.Equal(t, time.Unix(1700002400, 0).UTC(), result.Historical[0].Timestamp)
}

func TestFreshDataStoredOnlyMode(t *testing.T) {
	store := newFakeStore()
	sensor, err := store.InsertSensor(context.Background(), testEntry(118475))
	require.NoError(t, err)
	_, err = store.InsertReadings(context.Background(), catalog.ProviderPurpleAir, sensor.ID, []ingest.Reading{
		{Timestamp: time.Unix(1700000000, 0).UTC(), Temperature: fptr(70)},
	})
	require.NoError(t, err)

	purple := &fakePurpleAir{}
	svc := newTestService(t, store, purple, &fakeAcuRite{}, ingest.Options{AlwaysFetchFresh: false})

	result, err := svc.FreshData(context.Background(), ingest.FreshDataRequest{SensorIndex: 118475})
	require.NoError(t, err)

	assert.Equal(t, 0, purple.calls)
	assert.Equal(t, providers.EmptyPurpleAirPayload(), result.Live)
	require.Len(t, result.Historical, 1)
	assert.Equal(t, 70.0, *result.Historical[0].Temperature)
}
