package store_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flume-producer/internal/adapter/store"
	"github.com/couchcryptid/flume-producer/internal/domain"
)

func hydroSource() domain.Source {
	srcs := domain.NewSources(domain.SourceURLs{}, time.Hour, 7*24*time.Hour)
	return srcs[1]
}

func TestWriteDelta_KeyLayout(t *testing.T) {
	objects := store.NewFSStore(t.TempDir())
	deltas := store.NewDeltaStore(objects, discardLogger())

	now := time.Date(2024, time.June, 5, 9, 30, 15, 0, time.UTC)
	key, err := deltas.WriteDelta(context.Background(), hydroSource(), []domain.Feature{
		{ID: "h1", Properties: map[string]any{"STATION_NUMBER": "05BB001"}},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "hydrometric_raw/year=2024/month=06/day=05/hydrometric_delta_20240605093015.json", key)
}

func TestWriteDelta_IsFeatureCollection(t *testing.T) {
	objects := store.NewFSStore(t.TempDir())
	deltas := store.NewDeltaStore(objects, discardLogger())

	features := []domain.Feature{
		{ID: "h1", Properties: map[string]any{"STATION_NUMBER": "05BB001", "WATER_LEVEL": 1.25}},
		{ID: "h2", Properties: map[string]any{"STATION_NUMBER": "05BB002", "WATER_LEVEL": 0.75}},
	}
	key, err := deltas.WriteDelta(context.Background(), hydroSource(), features, time.Now().UTC())
	require.NoError(t, err)

	body, err := objects.Get(context.Background(), key)
	require.NoError(t, err)

	var collection domain.FeatureCollection
	require.NoError(t, json.Unmarshal(body, &collection))
	assert.Equal(t, "FeatureCollection", collection.Type)
	require.Len(t, collection.Features, 2)
	assert.Equal(t, "h1", collection.Features[0].ID)
	assert.Equal(t, "h2", collection.Features[1].ID)
}
