package ingest

import (
	"time"

	"github.com/couchcryptid/flume-producer/internal/domain"
)

// WatermarkTracker holds, per station, the instant of the most recent
// observation already accepted for one source, plus the global maximum
// across all stations. It decides inclusion for each new observation.
//
// Watermarks only ever move forward. Equal instants are never re-included,
// which is what makes re-fetching an overlap window produce zero duplicates.
type WatermarkTracker struct {
	global   time.Time
	stations map[string]time.Time
}

// NewWatermarkTracker seeds a tracker from a source's checkpoint. Station
// entries that fail to parse are dropped; a station without a watermark is
// simply treated as new.
func NewWatermarkTracker(state domain.SourceState) *WatermarkTracker {
	t := &WatermarkTracker{
		stations: make(map[string]time.Time, len(state.PerStation)),
	}
	if g, ok := domain.ParseWatermark(state.GlobalLastProcessed); ok {
		t.global = g
	}
	for station, raw := range state.PerStation {
		if ts, ok := domain.ParseWatermark(raw); ok {
			t.stations[station] = ts
		}
	}
	return t
}

// ShouldInclude reports whether an observation at obs is new for the
// station: either the station has never been seen, or obs is strictly
// after its watermark.
func (t *WatermarkTracker) ShouldInclude(station string, obs time.Time) bool {
	last, ok := t.stations[station]
	if !ok {
		return true
	}
	return obs.After(last)
}

// Advance raises the station's watermark to obs if obs exceeds it, and the
// global watermark likewise. Called only on final inclusion, so rejected
// features never move a watermark.
func (t *WatermarkTracker) Advance(station string, obs time.Time) {
	if last, ok := t.stations[station]; !ok || obs.After(last) {
		t.stations[station] = obs
	}
	if obs.After(t.global) {
		t.global = obs
	}
}

// Global returns the current global watermark; zero when no observation has
// ever been accepted.
func (t *WatermarkTracker) Global() time.Time {
	return t.global
}

// StationCount returns the number of stations with a watermark.
func (t *WatermarkTracker) StationCount() int {
	return len(t.stations)
}

// Snapshot renders the tracker back into checkpoint form. RFC3339Nano keeps
// fractional seconds intact; truncating to whole seconds would make a
// sub-second observation read as strictly newer than its own checkpoint and
// be re-included on the overlap re-fetch.
func (t *WatermarkTracker) Snapshot() (global string, perStation map[string]string) {
	if !t.global.IsZero() {
		global = t.global.Format(time.RFC3339Nano)
	}
	perStation = make(map[string]string, len(t.stations))
	for station, ts := range t.stations {
		perStation[station] = ts.Format(time.RFC3339Nano)
	}
	return global, perStation
}
