// Package store persists the ingestion checkpoint and delta artifacts to an
// object store: S3 in production, the local filesystem for development.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the minimal surface the producer needs: whole-object reads
// and writes, last writer wins. A single active producer instance is assumed,
// so no locking or conditional writes are required.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
}
