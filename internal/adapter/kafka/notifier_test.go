package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

func swobSource() domain.Source {
	srcs := domain.NewSources(domain.SourceURLs{}, time.Hour, 7*24*time.Hour)
	return srcs[0]
}

func TestSerializeToMessage(t *testing.T) {
	feat := domain.Feature{
		ID: "swob-obs-1",
		Properties: map[string]any{
			"tc_id-value":   "XKA",
			"date_tm-value": "2024-06-15T10:00:00Z",
			"air_temp":      12.5,
		},
	}

	publishedAt := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	msg, err := serializeToMessage(swobSource(), feat, publishedAt)
	require.NoError(t, err)

	// Keyed by feature id so downstream consumers can dedup redeliveries.
	assert.Equal(t, []byte("swob-obs-1"), msg.Key)

	var back domain.Feature
	require.NoError(t, json.Unmarshal(msg.Value, &back))
	assert.Equal(t, feat.ID, back.ID)
	assert.Equal(t, "XKA", back.StringProperty("tc_id-value"))

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "swob", headers["source"])
	assert.Equal(t, "2024-06-15T10:00:00Z", headers["observed_at"])
	assert.Equal(t, "2024-06-15T12:00:00Z", headers["published_at"])
}
