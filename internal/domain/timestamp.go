package domain

import (
	"log/slog"
	"time"
)

// maxObservationAge bounds how old an observation may be before it is
// rejected as stale. Anything older than a year is assumed to be a data
// error upstream rather than a late arrival.
const maxObservationAge = 365 * 24 * time.Hour

// fallbackLayouts are tried in order when the primary RFC 3339 parse fails.
// Layouts without a zone are taken as UTC, matching upstream behavior.
var fallbackLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// TimestampParser parses heterogeneous observation timestamp strings and
// rejects instants outside a sane window around now.
type TimestampParser struct {
	// MaxFutureDays is how far ahead of wall clock an observation may be
	// dated before it is rejected.
	MaxFutureDays int

	Logger *slog.Logger
}

// Parse normalizes a timestamp string to a UTC instant. The second return is
// false when the input is empty, unparsable, or outside the validity window;
// none of those are errors, the observation is simply not usable.
func (p TimestampParser) Parse(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	t, ok := parseAny(s)
	if !ok {
		return time.Time{}, false
	}
	t = t.UTC()

	now := clock.Now().UTC()
	if t.After(now.Add(time.Duration(p.MaxFutureDays) * 24 * time.Hour)) {
		p.Logger.Warn("rejected future timestamp",
			"raw", s, "parsed", t, "max_future_days", p.MaxFutureDays)
		return time.Time{}, false
	}
	if t.Before(now.Add(-maxObservationAge)) {
		p.Logger.Warn("rejected stale timestamp", "raw", s, "parsed", t)
		return time.Time{}, false
	}

	return t, true
}

func parseAny(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Location() == time.UTC {
				return t, true
			}
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseWatermark parses an instant previously written by this process into
// the checkpoint. No validity window applies: a checkpoint older than the
// stale cutoff is still a trusted watermark.
func ParseWatermark(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, ok := parseAny(s)
	if !ok {
		return time.Time{}, false
	}
	return t.UTC(), true
}
