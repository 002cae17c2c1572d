package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

// StateStore persists the whole ingestion checkpoint as one indented JSON
// object. It implements ingest.StateStore.
type StateStore struct {
	objects ObjectStore
	key     string
	logger  *slog.Logger
}

// NewStateStore creates a checkpoint store writing under key.
func NewStateStore(objects ObjectStore, key string, logger *slog.Logger) *StateStore {
	return &StateStore{objects: objects, key: key, logger: logger}
}

// Load reads the checkpoint. A missing object is a fresh start, not an
// error; every source is simply treated as never fetched.
func (s *StateStore) Load(ctx context.Context) (domain.IngestionState, error) {
	body, err := s.objects.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("no existing state, starting fresh", "key", s.key)
			return domain.IngestionState{}, nil
		}
		return nil, fmt.Errorf("load state %s: %w", s.key, err)
	}

	var state domain.IngestionState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.key, err)
	}
	s.logger.Info("loaded state", "key", s.key, "sources", len(state))
	return state, nil
}

// Save writes the checkpoint, replacing the previous document.
func (s *StateStore) Save(ctx context.Context, state domain.IngestionState) error {
	body, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.objects.Put(ctx, s.key, body, "application/json"); err != nil {
		return fmt.Errorf("save state %s: %w", s.key, err)
	}
	s.logger.Info("persisted state", "key", s.key, "sources", len(state))
	return nil
}
