package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

// DeltaStore writes each run's newly accepted features as an immutable
// FeatureCollection artifact, partitioned by source and date. It implements
// ingest.DeltaWriter.
type DeltaStore struct {
	objects ObjectStore
	logger  *slog.Logger
}

// NewDeltaStore creates a delta artifact writer.
func NewDeltaStore(objects ObjectStore, logger *slog.Logger) *DeltaStore {
	return &DeltaStore{objects: objects, logger: logger}
}

// WriteDelta writes the accepted features under
// <prefix>/year=YYYY/month=MM/day=DD/<source>_delta_<YYYYMMDDHHMMSS>.json
// and returns the object key.
func (d *DeltaStore) WriteDelta(ctx context.Context, src domain.Source, features []domain.Feature, now time.Time) (string, error) {
	collection := domain.FeatureCollection{
		Type:     "FeatureCollection",
		Features: features,
	}
	body, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode delta: %w", err)
	}

	key := deltaKey(src, now)
	if err := d.objects.Put(ctx, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("write delta %s: %w", key, err)
	}
	d.logger.Info("wrote delta artifact", "source", src.Name, "key", key, "count", len(features))
	return key, nil
}

func deltaKey(src domain.Source, now time.Time) string {
	return fmt.Sprintf("%s/year=%04d/month=%02d/day=%02d/%s_delta_%s.json",
		src.KeyPrefix,
		now.Year(), int(now.Month()), now.Day(),
		src.Name, now.Format("20060102150405"),
	)
}
