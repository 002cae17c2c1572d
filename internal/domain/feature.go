package domain

// Feature is one observation as returned by the upstream API: an opaque
// source-assigned id, a free-form property map, and a point geometry.
type Feature struct {
	Type       string         `json:"type,omitempty"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry,omitempty"`
}

// Geometry is the GeoJSON geometry attached to a feature. Observations are
// points, so Coordinates is [lon, lat] (optionally with elevation).
type Geometry struct {
	Type        string    `json:"type,omitempty"`
	Coordinates []float64 `json:"coordinates,omitempty"`
}

// Link is a hypermedia link from a feature collection response. Pagination
// follows the link with Rel == "next".
type Link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// FeatureCollection is both the upstream page shape and the delta artifact
// shape. Links is only present on API responses.
type FeatureCollection struct {
	Type           string    `json:"type"`
	Features       []Feature `json:"features"`
	Links          []Link    `json:"links,omitempty"`
	NumberReturned int       `json:"numberReturned,omitempty"`
}

// StringProperty returns the named property rendered as a string, or ""
// when absent. Numeric property values are formatted without an exponent so
// station numbers survive the JSON round-trip.
func (f Feature) StringProperty(name string) string {
	v, ok := f.Properties[name]
	if !ok || v == nil {
		return ""
	}
	return stringifyProperty(v)
}

// NumericProperty returns the named property as a float64. The second return
// is false when the property is absent or not numeric.
func (f Feature) NumericProperty(name string) (float64, bool) {
	v, ok := f.Properties[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
