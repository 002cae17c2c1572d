package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flume-producer/internal/domain"
	"github.com/couchcryptid/flume-producer/internal/ingest"
	"github.com/couchcryptid/flume-producer/internal/observability"
)

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

// --- mocks ---

type mockFetcher struct {
	features   []domain.Feature
	err        error
	lastStart  time.Time
	fetchCalls int
}

func (m *mockFetcher) FetchSince(_ context.Context, _ domain.Source, start time.Time) ([]domain.Feature, error) {
	m.fetchCalls++
	m.lastStart = start
	return m.features, m.err
}

// mockDeltaWriter is safe for concurrent use: the producer processes
// sources in parallel.
type mockDeltaWriter struct {
	mu      sync.Mutex
	written [][]domain.Feature
	err     error
}

func (m *mockDeltaWriter) WriteDelta(_ context.Context, src domain.Source, features []domain.Feature, _ time.Time) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, features)
	return src.KeyPrefix + "/delta.json", nil
}

type mockNotifier struct {
	notified [][]domain.Feature
	err      error
}

func (m *mockNotifier) NotifyDelta(_ context.Context, _ domain.Source, features []domain.Feature) error {
	m.notified = append(m.notified, features)
	return m.err
}

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSources(t *testing.T) []domain.Source {
	t.Helper()
	return domain.NewSources(domain.SourceURLs{
		SurfaceWeather: "https://api.example.test/swob/items",
		Hydrometric:    "https://api.example.test/hydro/items",
		ClimateHourly:  "https://api.example.test/climate/items",
	}, time.Hour, 7*24*time.Hour)
}

func sourceByKind(t *testing.T, kind domain.SourceKind) domain.Source {
	t.Helper()
	for _, src := range testSources(t) {
		if src.Kind == kind {
			return src
		}
	}
	t.Fatalf("no source for kind %v", kind)
	return domain.Source{}
}

func newProcessor(t *testing.T, fetcher *mockFetcher, deltas *mockDeltaWriter, notifier ingest.DeltaNotifier) *ingest.Processor {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(testNow))
	t.Cleanup(func() { domain.SetClock(nil) })

	return ingest.NewProcessor(fetcher, deltas, ingest.ProcessorOptions{
		Overlap:        15 * time.Minute,
		MaxFutureDays:  1,
		MinQAThreshold: 0,
		Notifier:       notifier,
	}, discardLogger(), observability.NewMetricsForTesting(), clockwork.NewFakeClockAt(testNow))
}

func hydroFeature(id, station string, obs time.Time) domain.Feature {
	return domain.Feature{
		ID: id,
		Properties: map[string]any{
			"STATION_NUMBER": station,
			"DATETIME":       obs.Format(time.RFC3339),
			"WATER_LEVEL":    1.25,
		},
	}
}

// --- tests ---

func TestProcess_WindowDerivation_NoCheckpoint(t *testing.T) {
	fetcher := &mockFetcher{}
	p := newProcessor(t, fetcher, &mockDeltaWriter{}, nil)

	_, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.NoError(t, err)
	assert.True(t, fetcher.lastStart.Equal(testNow.Add(-time.Hour)),
		"start %v, want now-1h", fetcher.lastStart)
}

func TestProcess_WindowDerivation_ClimateLookback(t *testing.T) {
	fetcher := &mockFetcher{}
	p := newProcessor(t, fetcher, &mockDeltaWriter{}, nil)

	_, err := p.Process(context.Background(), sourceByKind(t, domain.ClimateHourly), domain.SourceState{})
	require.NoError(t, err)
	assert.True(t, fetcher.lastStart.Equal(testNow.Add(-7*24*time.Hour)),
		"start %v, want now-7d", fetcher.lastStart)
}

func TestProcess_WindowDerivation_FromCheckpoint(t *testing.T) {
	fetcher := &mockFetcher{}
	p := newProcessor(t, fetcher, &mockDeltaWriter{}, nil)

	watermark := testNow.Add(-2 * time.Hour)
	prev := domain.SourceState{GlobalLastProcessed: watermark.Format(time.RFC3339)}

	_, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), prev)
	require.NoError(t, err)
	assert.True(t, fetcher.lastStart.Equal(watermark.Add(-15*time.Minute)),
		"start %v, want watermark-overlap", fetcher.lastStart)
}

func TestProcess_EmptyFetchRecordsRunWithoutWatermarkMotion(t *testing.T) {
	fetcher := &mockFetcher{}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)

	watermark := testNow.Add(-time.Hour).Format(time.RFC3339)
	prev := domain.SourceState{
		GlobalLastProcessed: watermark,
		PerStation:          map[string]string{"05BB001": watermark},
		StationsTracked:     1,
	}

	next, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), prev)
	require.NoError(t, err)

	assert.Equal(t, watermark, next.GlobalLastProcessed)
	assert.Equal(t, watermark, next.PerStation["05BB001"])
	assert.Equal(t, testNow.Format(time.RFC3339), next.LastRunTimestamp)
	require.NotNil(t, next.RunMetadata)
	assert.Zero(t, next.RunMetadata.FeaturesFetched)
	assert.Empty(t, deltas.written)
}

func TestProcess_AcceptsNewAndWritesDelta(t *testing.T) {
	obs1 := testNow.Add(-30 * time.Minute)
	obs2 := testNow.Add(-20 * time.Minute)
	fetcher := &mockFetcher{features: []domain.Feature{
		hydroFeature("f1", "05BB001", obs1),
		hydroFeature("f2", "05BB002", obs2),
	}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)

	next, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.NoError(t, err)

	require.Len(t, deltas.written, 1)
	assert.Len(t, deltas.written[0], 2)
	assert.Equal(t, obs2.Format(time.RFC3339), next.GlobalLastProcessed)
	assert.Equal(t, obs1.Format(time.RFC3339), next.PerStation["05BB001"])
	assert.Equal(t, obs2.Format(time.RFC3339), next.PerStation["05BB002"])
	assert.Equal(t, 2, next.StationsTracked)

	require.NotNil(t, next.RunMetadata)
	assert.Equal(t, 2, next.RunMetadata.FeaturesFetched)
	assert.Equal(t, 2, next.RunMetadata.FeaturesNew)
	assert.Equal(t, obs1.Format(time.RFC3339), next.RunMetadata.OldestObservation)
	assert.Equal(t, obs2.Format(time.RFC3339), next.RunMetadata.NewestObservation)
}

func TestProcess_OverlapIdempotence(t *testing.T) {
	obs := testNow.Add(-30 * time.Minute)
	fetcher := &mockFetcher{features: []domain.Feature{
		hydroFeature("f1", "05BB001", obs),
	}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)
	src := sourceByKind(t, domain.Hydrometric)

	first, err := p.Process(context.Background(), src, domain.SourceState{})
	require.NoError(t, err)
	require.Len(t, deltas.written, 1)

	// Re-delivering the same observation in the overlap window: no second
	// inclusion, no second delta, watermark unchanged.
	second, err := p.Process(context.Background(), src, first)
	require.NoError(t, err)
	assert.Len(t, deltas.written, 1)
	assert.Equal(t, first.GlobalLastProcessed, second.GlobalLastProcessed)
	assert.Zero(t, second.RunMetadata.FeaturesNew)

	// One tick later is included exactly once.
	fetcher.features = append(fetcher.features, hydroFeature("f2", "05BB001", obs.Add(time.Second)))
	third, err := p.Process(context.Background(), src, second)
	require.NoError(t, err)
	require.Len(t, deltas.written, 2)
	assert.Len(t, deltas.written[1], 1)
	assert.Equal(t, "f2", deltas.written[1][0].ID)
	assert.Equal(t, obs.Add(time.Second).Format(time.RFC3339), third.GlobalLastProcessed)
}

func TestProcess_OverlapIdempotence_FractionalSeconds(t *testing.T) {
	obs := testNow.Add(-30*time.Minute + 500*time.Millisecond)
	feat := domain.Feature{
		ID: "f1",
		Properties: map[string]any{
			"STATION_NUMBER": "05BB001",
			"DATETIME":       obs.Format(time.RFC3339Nano),
			"WATER_LEVEL":    1.25,
		},
	}
	fetcher := &mockFetcher{features: []domain.Feature{feat}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)
	src := sourceByKind(t, domain.Hydrometric)

	first, err := p.Process(context.Background(), src, domain.SourceState{})
	require.NoError(t, err)
	require.Len(t, deltas.written, 1)
	assert.Equal(t, obs.Format(time.RFC3339Nano), first.GlobalLastProcessed,
		"checkpoint must keep the fractional second")

	// The sub-second instant survives the checkpoint round trip, so the
	// overlap re-fetch of the same observation includes nothing and writes
	// no second delta.
	second, err := p.Process(context.Background(), src, first)
	require.NoError(t, err)
	assert.Len(t, deltas.written, 1)
	assert.Zero(t, second.RunMetadata.FeaturesNew)
	assert.Equal(t, first.GlobalLastProcessed, second.GlobalLastProcessed)
}

func TestProcess_BatchDedupByFeatureID(t *testing.T) {
	obs := testNow.Add(-30 * time.Minute)
	dup := hydroFeature("f1", "05BB001", obs)
	fetcher := &mockFetcher{features: []domain.Feature{dup, dup, dup}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)

	next, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.NoError(t, err)

	require.Len(t, deltas.written, 1)
	assert.Len(t, deltas.written[0], 1)
	assert.Equal(t, 1, next.RunMetadata.FeaturesNew)
}

func TestProcess_FutureTimestampRejectedNotMerged(t *testing.T) {
	future := hydroFeature("f-future", "05BB001", testNow.Add(48*time.Hour))
	ok := hydroFeature("f-ok", "05BB002", testNow.Add(-10*time.Minute))
	fetcher := &mockFetcher{features: []domain.Feature{future, ok}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)

	next, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.NoError(t, err)

	assert.Equal(t, 1, next.RunMetadata.RejectedTimestamp)
	assert.Equal(t, 1, next.RunMetadata.FeaturesNew)
	// The future instant must not leak into any watermark.
	assert.Equal(t, testNow.Add(-10*time.Minute).Format(time.RFC3339), next.GlobalLastProcessed)
	assert.NotContains(t, next.PerStation, "05BB001")
}

func TestProcess_QualityVetoDoesNotAdvanceWatermark(t *testing.T) {
	src := sourceByKind(t, domain.SurfaceWeather)
	obs := testNow.Add(-30 * time.Minute)

	lowQuality := domain.Feature{
		ID: "f-low",
		Properties: map[string]any{
			"tc_id-value":   "XKA",
			"date_tm-value": obs.Format(time.RFC3339),
			"air_temp":      12.5,
			"air_temp-qa":   float64(-1),
		},
	}
	fetcher := &mockFetcher{features: []domain.Feature{lowQuality}}
	deltas := &mockDeltaWriter{}
	p := newProcessor(t, fetcher, deltas, nil)

	next, err := p.Process(context.Background(), src, domain.SourceState{})
	require.NoError(t, err)

	assert.Equal(t, 1, next.RunMetadata.RejectedQuality)
	assert.Zero(t, next.RunMetadata.FeaturesNew)
	assert.Empty(t, deltas.written)
	// A quality veto is counted separately and moves no watermark.
	assert.Empty(t, next.GlobalLastProcessed)
	assert.NotContains(t, next.PerStation, "XKA")
}

func TestProcess_FetchErrorPropagates(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("connection refused")}
	p := newProcessor(t, fetcher, &mockDeltaWriter{}, nil)

	_, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.Error(t, err)
}

func TestProcess_DeltaWriteErrorPropagates(t *testing.T) {
	fetcher := &mockFetcher{features: []domain.Feature{
		hydroFeature("f1", "05BB001", testNow.Add(-30*time.Minute)),
	}}
	deltas := &mockDeltaWriter{err: errors.New("bucket unavailable")}
	p := newProcessor(t, fetcher, deltas, nil)

	_, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.Error(t, err)
}

func TestProcess_NotifierFailureIsAdvisory(t *testing.T) {
	fetcher := &mockFetcher{features: []domain.Feature{
		hydroFeature("f1", "05BB001", testNow.Add(-30*time.Minute)),
	}}
	deltas := &mockDeltaWriter{}
	notifier := &mockNotifier{err: errors.New("broker down")}
	p := newProcessor(t, fetcher, deltas, notifier)

	next, err := p.Process(context.Background(), sourceByKind(t, domain.Hydrometric), domain.SourceState{})
	require.NoError(t, err)
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, 1, next.RunMetadata.FeaturesNew)
}
