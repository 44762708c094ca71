package config

import (
	"fmt"
	"math"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the interval. Non-finite
// values are never inside.
func (r Range) Contains(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= r.Min && v <= r.Max
}

// Clamp pins v to the interval. Non-finite values collapse to Min.
func (r Range) Clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return r.Min
	}
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// bound ties a parameter name to its hard limits, the narrower band the
// balance was tuned for, and the accessor into Params.
type bound struct {
	name        string
	hard        Range
	recommended Range
	get         func(*Params) *float64
}

var paramBounds = []bound{
	{"food_per_capita", Range{0.01, 10}, Range{0.1, 1}, func(p *Params) *float64 { return &p.FoodPerCapita }},
	{"growth_rate", Range{0, 1}, Range{0.005, 0.1}, func(p *Params) *float64 { return &p.GrowthRate }},
	{"decline_rate", Range{0, 1}, Range{0.01, 0.2}, func(p *Params) *float64 { return &p.DeclineRate }},
	{"buildings_per_population", Range{0.01, 2}, Range{0.05, 0.5}, func(p *Params) *float64 { return &p.BuildingsPerPopulation }},
	{"building_wood_cost", Range{0, 1000}, Range{1, 100}, func(p *Params) *float64 { return &p.BuildingWoodCost }},
	{"building_ore_cost", Range{0, 1000}, Range{1, 100}, func(p *Params) *float64 { return &p.BuildingOreCost }},
	{"surplus_threshold", Range{1, 10}, Range{1.2, 3}, func(p *Params) *float64 { return &p.SurplusThreshold }},
	{"shortage_threshold", Range{0.1, 1}, Range{0.5, 1}, func(p *Params) *float64 { return &p.ShortageThreshold }},
	{"critical_threshold", Range{0.01, 1}, Range{0.1, 0.5}, func(p *Params) *float64 { return &p.CriticalThreshold }},
	{"base_storage_capacity", Range{10, 100000}, Range{50, 1000}, func(p *Params) *float64 { return &p.BaseStorageCapacity }},
	{"storage_per_building", Range{0, 10000}, Range{10, 200}, func(p *Params) *float64 { return &p.StoragePerBuilding }},
}

// Issue describes one rejected or suspicious parameter value.
type Issue struct {
	Field     string  `json:"field"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Suggested float64 `json:"suggested"`
}

// Result is the outcome of validating a parameter set. Errors mean the
// set cannot be used as-is (Sanitize produces a usable copy); warnings
// flag values outside the tuned band that are still legal.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Validate checks every parameter against its hard and recommended
// ranges and the threshold ordering. It never mutates p.
func (p Params) Validate() Result {
	res := Result{Valid: true}
	def := Default()

	for _, b := range paramBounds {
		v := *b.get(&p)
		if !b.hard.Contains(v) {
			res.Valid = false
			res.Errors = append(res.Errors, Issue{
				Field:     b.name,
				Message:   fmt.Sprintf("outside allowed range [%g, %g]", b.hard.Min, b.hard.Max),
				Value:     v,
				Suggested: suggestFor(b, v, def),
			})
			continue
		}
		if !b.recommended.Contains(v) {
			res.Warnings = append(res.Warnings, Issue{
				Field:     b.name,
				Message:   fmt.Sprintf("outside recommended range [%g, %g]", b.recommended.Min, b.recommended.Max),
				Value:     v,
				Suggested: b.recommended.Clamp(v),
			})
		}
	}

	if !(p.CriticalThreshold <= p.ShortageThreshold && p.ShortageThreshold <= p.SurplusThreshold) {
		res.Valid = false
		res.Errors = append(res.Errors, Issue{
			Field:     "critical_threshold",
			Message:   "thresholds must be ordered critical <= shortage <= surplus",
			Value:     p.CriticalThreshold,
			Suggested: def.CriticalThreshold,
		})
	}
	return res
}

// suggestFor picks the replacement offered for an out-of-range value:
// the nearest hard bound, or the default when the value is not even a
// finite number.
func suggestFor(b bound, v float64, def Params) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return *b.get(&def)
	}
	return b.hard.Clamp(v)
}

// Sanitize returns a copy of p with every parameter forced into its
// hard range and the threshold ordering repaired, together with the
// validation result for the original values. The returned set is always
// safe to hand to the engines.
func (p Params) Sanitize() (Params, Result) {
	res := p.Validate()
	out := p
	def := Default()

	for _, b := range paramBounds {
		field := b.get(&out)
		v := *field
		if math.IsNaN(v) || math.IsInf(v, 0) {
			*field = *b.get(&def)
			continue
		}
		*field = b.hard.Clamp(v)
	}

	// Repair ordering by pulling the offenders toward the shortage value.
	if out.CriticalThreshold > out.ShortageThreshold {
		out.CriticalThreshold = out.ShortageThreshold
	}
	if out.SurplusThreshold < out.ShortageThreshold {
		out.SurplusThreshold = math.Max(out.ShortageThreshold, 1)
	}
	return out, res
}
