// Package guard keeps simulation state inside hard bounds. It
// validates settlements, clamps out-of-range values, replaces records
// that cannot be repaired, and shields derived calculations from
// panics and non-finite results. Every intervention lands in an
// in-memory error log that lives and dies with the process.
package guard

import "math"

// Range is a closed interval with the value substituted when a field
// is missing or not a finite number.
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Field bounds. These are hard safety limits, not balance tuning.
var (
	PopulationRange = Range{Min: 0, Max: 1000, Default: 1}
	AmountRange     = Range{Min: 0, Max: 100000, Default: 0}
	RateRange       = Range{Min: 0, Max: 10000, Default: 0}
	BuildingRange   = Range{Min: 0, Max: 500, Default: 0}
	RadiusRange     = Range{Min: 1, Max: 10, Default: 1}
	CapacityRange   = Range{Min: 0, Max: 200000, Default: 100}
)

// Contains reports whether v is finite and inside the interval.
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// Clamp returns v forced into the interval and whether it changed.
// Non-finite input collapses to the default.
func (r Range) Clamp(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return r.Default, true
	}
	if v < r.Min {
		return r.Min, true
	}
	if v > r.Max {
		return r.Max, true
	}
	return v, false
}

// ClampInt is Clamp for integer fields.
func (r Range) ClampInt(v int) (int, bool) {
	f, changed := r.Clamp(float64(v))
	return int(f), changed
}
