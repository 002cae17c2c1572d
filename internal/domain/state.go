package domain

import "maps"

// RunMetadata records diagnostic counts for one ingestion run of one source.
// It is informational only; correctness depends solely on the watermarks.
type RunMetadata struct {
	FeaturesFetched    int     `json:"features_fetched"`
	FeaturesNew        int     `json:"features_new"`
	RejectedQuality    int     `json:"features_rejected_quality"`
	RejectedTimestamp  int     `json:"features_rejected_timestamp"`
	RunDurationSeconds float64 `json:"run_duration_seconds"`
	OldestObservation  string  `json:"oldest_observation,omitempty"`
	NewestObservation  string  `json:"newest_observation,omitempty"`
}

// SourceState is the durable checkpoint for one source. Instants are stored
// as RFC 3339 strings so the document stays readable and diffs cleanly.
//
// Invariants: every per-station instant is <= the global instant, and the
// global instant never decreases across successful runs.
type SourceState struct {
	GlobalLastProcessed string            `json:"global_last_processed_dt,omitempty"`
	PerStation          map[string]string `json:"per_station,omitempty"`
	LastRunTimestamp    string            `json:"last_run_timestamp,omitempty"`
	StationsTracked     int               `json:"stations_tracked,omitempty"`
	RunMetadata         *RunMetadata      `json:"run_metadata,omitempty"`
}

// Clone returns a deep copy, so a processor can mutate its working state
// without touching the pre-run snapshot kept for rollback.
func (s SourceState) Clone() SourceState {
	out := s
	if s.PerStation != nil {
		out.PerStation = maps.Clone(s.PerStation)
	}
	if s.RunMetadata != nil {
		md := *s.RunMetadata
		out.RunMetadata = &md
	}
	return out
}

// IngestionState is the whole checkpoint document, keyed by source name.
// Loaded once at the start of a run, written back once at the end.
type IngestionState map[string]SourceState

// Clone deep-copies the document.
func (s IngestionState) Clone() IngestionState {
	out := make(IngestionState, len(s))
	for name, sub := range s {
		out[name] = sub.Clone()
	}
	return out
}
