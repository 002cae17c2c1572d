package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// SourceKind tags the closed set of supported collections.
type SourceKind int

const (
	SurfaceWeather SourceKind = iota
	Hydrometric
	ClimateHourly
)

func (k SourceKind) String() string {
	switch k {
	case SurfaceWeather:
		return "swob"
	case Hydrometric:
		return "hydrometric"
	case ClimateHourly:
		return "climate_hourly"
	default:
		return "unknown"
	}
}

// Source describes one upstream collection: where to fetch it and which
// property names carry the observation instant and the station identity.
// Instances come from NewSources; the field tables are fixed per kind.
type Source struct {
	Kind SourceKind

	// Name keys this source in the checkpoint document and in log output.
	Name string

	// URL is the collection items endpoint, query string included.
	URL string

	// TimestampFields are tried in order when resolving the observation
	// instant. "processed_date_tm" is appended to every table as the
	// collection-independent fallback.
	TimestampFields []string

	// StationFields are tried in order when resolving the station identity.
	StationFields []string

	// KeyPrefix is the object-store prefix for this source's delta artifacts.
	KeyPrefix string

	// QualityGated marks sources whose features pass through the QA-code
	// filter. CriticalFields lists the gated measurement names; each has a
	// "<field>-qa" companion property.
	QualityGated   bool
	CriticalFields []string

	// InitialLookback is how far back the first-ever fetch window reaches
	// when no checkpoint exists for this source.
	InitialLookback time.Duration
}

// SourceURLs carries the three collection endpoints into NewSources.
type SourceURLs struct {
	SurfaceWeather string
	Hydrometric    string
	ClimateHourly  string
}

// NewSources builds the closed set of source records. defaultLookback applies
// to the real-time collections; climateLookback is the longer window for
// climate-hourly, which updates far less frequently.
func NewSources(urls SourceURLs, defaultLookback, climateLookback time.Duration) []Source {
	return []Source{
		{
			Kind:            SurfaceWeather,
			Name:            SurfaceWeather.String(),
			URL:             urls.SurfaceWeather,
			TimestampFields: []string{"date_tm-value", "obs_date_tm", "processed_date_tm"},
			StationFields:   []string{"tc_id-value", "msc_id-value"},
			KeyPrefix:       "swob_raw",
			QualityGated:    true,
			CriticalFields:  []string{"air_temp", "rel_hum", "stn_pres"},
			InitialLookback: defaultLookback,
		},
		{
			Kind:            Hydrometric,
			Name:            Hydrometric.String(),
			URL:             urls.Hydrometric,
			TimestampFields: []string{"DATETIME", "processed_date_tm"},
			StationFields:   []string{"STATION_NUMBER"},
			KeyPrefix:       "hydrometric_raw",
			InitialLookback: defaultLookback,
		},
		{
			Kind:            ClimateHourly,
			Name:            ClimateHourly.String(),
			URL:             urls.ClimateHourly,
			TimestampFields: []string{"UTC_DATE", "LOCAL_DATE", "processed_date_tm"},
			StationFields:   []string{"CLIMATE_IDENTIFIER"},
			KeyPrefix:       "climate_hourly_raw",
			InitialLookback: climateLookback,
		},
	}
}

// ObservationTimestamp returns the raw timestamp string for a feature, trying
// the source's field table in order. Empty when none is populated.
func (s Source) ObservationTimestamp(f Feature) string {
	for _, field := range s.TimestampFields {
		if v := f.StringProperty(field); v != "" {
			return v
		}
	}
	return ""
}

// StationID resolves the station identity for a feature. Every feature gets
// some key: the first populated station field, else the feature id, else a
// hash of the full property map.
func (s Source) StationID(f Feature) string {
	for _, field := range s.StationFields {
		if v := f.StringProperty(field); v != "" {
			return v
		}
	}
	if f.ID != "" {
		return f.ID
	}
	return "unknown_" + propertyDigest(f.Properties)
}

// propertyDigest hashes the whole property map in key order so identical
// payloads collapse to one pseudo-station and distinct payloads do not.
func propertyDigest(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		if b, err := json.Marshal(props[k]); err == nil {
			h.Write(b)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func stringifyProperty(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}
