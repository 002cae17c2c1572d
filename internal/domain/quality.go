package domain

// qaSuffix is the naming convention for per-field quality companions.
const qaSuffix = "-qa"

// QualityFilter gates features on their per-field quality-annotation codes.
// Only quality-gated sources are filtered; everything else always passes.
type QualityFilter struct {
	// MinThreshold is the lowest acceptable QA code. A code below it on any
	// critical field rejects the whole feature. A missing code is acceptable:
	// upstream omits QA annotations for fields it did not measure.
	MinThreshold float64
}

// Accept reports whether the feature passes the source's quality gate.
func (q QualityFilter) Accept(src Source, f Feature) bool {
	if !src.QualityGated {
		return true
	}
	for _, field := range src.CriticalFields {
		code, ok := f.NumericProperty(field + qaSuffix)
		if !ok {
			continue
		}
		if code < q.MinThreshold {
			return false
		}
	}
	return true
}
