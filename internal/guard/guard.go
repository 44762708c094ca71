package guard

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

// Kind classifies an error log entry.
type Kind string

const (
	KindCalculation        Kind = "calculation"
	KindDataIntegrity      Kind = "data_integrity"
	KindStateInconsistency Kind = "state_inconsistency"
	KindValidation         Kind = "validation"
)

// ErrorRecord is one logged intervention. Original and Corrected are
// set when a single numeric value was repaired.
type ErrorRecord struct {
	SettlementID string   `json:"settlement_id"`
	Kind         Kind     `json:"kind"`
	Message      string   `json:"message"`
	Time         float64  `json:"time"`
	Recovery     string   `json:"recovery"`
	Original     *float64 `json:"original,omitempty"`
	Corrected    *float64 `json:"corrected,omitempty"`
}

// Result is the outcome of validating one settlement. Errors mean the
// state must not be used until corrected; warnings flag suspicious but
// legal values.
type Result struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

const maxLogEntries = 1000

// Guard validates and repairs settlement state. Safe for concurrent
// log reads; mutation entry points are called from the tick loop only.
type Guard struct {
	logger *slog.Logger

	// Clock supplies the current simulation time stamped onto records.
	Clock func() float64

	mu  sync.Mutex
	log []ErrorRecord
}

// New returns a guard logging through the given slog logger.
func New(logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		logger: logger,
		Clock:  func() float64 { return 0 },
	}
}

// record appends to the ring, dropping the oldest entries past the cap.
func (g *Guard) record(rec ErrorRecord) {
	rec.Time = g.Clock()

	g.mu.Lock()
	g.log = append(g.log, rec)
	if len(g.log) > maxLogEntries {
		g.log = g.log[len(g.log)-maxLogEntries:]
	}
	g.mu.Unlock()

	g.logger.Debug("guard intervention",
		"settlement", rec.SettlementID,
		"kind", string(rec.Kind),
		"message", rec.Message,
		"recovery", rec.Recovery,
	)
}

// Report files an error record on behalf of an engine that handled
// the failure itself.
func (g *Guard) Report(settlementID string, kind Kind, message, recovery string) {
	g.record(ErrorRecord{
		SettlementID: settlementID,
		Kind:         kind,
		Message:      message,
		Recovery:     recovery,
	})
}

// Validate checks a settlement without touching it. A panic while
// checking is itself reported as a validation failure.
func (g *Guard) Validate(s *village.Settlement) (res Result) {
	res.IsValid = true

	defer func() {
		if r := recover(); r != nil {
			res.IsValid = false
			res.Errors = append(res.Errors, fmt.Sprintf("validation panic: %v", r))
			g.record(ErrorRecord{
				SettlementID: settlementID(s),
				Kind:         KindValidation,
				Message:      fmt.Sprintf("panic while validating: %v", r),
				Recovery:     "reported as validation failure",
			})
		}
	}()

	if s == nil {
		res.IsValid = false
		res.Errors = append(res.Errors, "settlement is nil")
		return res
	}

	fail := func(format string, args ...any) {
		res.IsValid = false
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(format, args...))
	}

	if !PopulationRange.Contains(float64(s.Population)) {
		fail("population %d outside [%g, %g]", s.Population, PopulationRange.Min, PopulationRange.Max)
	}
	if !RadiusRange.Contains(float64(s.Radius)) {
		fail("collection radius %d outside [%g, %g]", s.Radius, RadiusRange.Min, RadiusRange.Max)
	}

	if s.Storage == nil {
		fail("storage is missing")
	} else {
		for _, rt := range economy.ResourceTypes() {
			if v := s.Storage.Of(rt); !AmountRange.Contains(v) {
				fail("storage %s %g outside [%g, %g]", rt, v, AmountRange.Min, AmountRange.Max)
			}
		}
	}

	if s.Economy == nil {
		fail("economy record is missing")
		return res
	}

	e := s.Economy
	for _, rt := range economy.ResourceTypes() {
		if v := e.Production.Of(rt); !RateRange.Contains(v) {
			fail("production %s %g outside [%g, %g]", rt, v, RateRange.Min, RateRange.Max)
		}
		if v := e.Consumption.Of(rt); !RateRange.Contains(v) {
			fail("consumption %s %g outside [%g, %g]", rt, v, RateRange.Min, RateRange.Max)
		}
		if v := e.Stock.Of(rt); !AmountRange.Contains(v) {
			fail("stock %s %g outside [%g, %g]", rt, v, AmountRange.Min, AmountRange.Max)
		}
	}
	if !CapacityRange.Contains(e.Stock.Capacity) {
		fail("capacity %g outside [%g, %g]", e.Stock.Capacity, CapacityRange.Min, CapacityRange.Max)
	}
	if !BuildingRange.Contains(float64(e.Buildings.Count)) {
		fail("building count %d outside [%g, %g]", e.Buildings.Count, BuildingRange.Min, BuildingRange.Max)
	}
	if !BuildingRange.Contains(float64(e.Buildings.Target)) {
		fail("building target %d outside [%g, %g]", e.Buildings.Target, BuildingRange.Min, BuildingRange.Max)
	}
	if !BuildingRange.Contains(float64(e.Buildings.Queue)) {
		fail("building queue %d outside [%g, %g]", e.Buildings.Queue, BuildingRange.Min, BuildingRange.Max)
	}

	// Consistency checks: legal values that disagree with each other.
	if s.Storage != nil {
		for _, rt := range economy.ResourceTypes() {
			if diff := math.Abs(s.Storage.Of(rt) - e.Stock.Of(rt)); diff > 0.1 {
				warn("stock %s drifted %.2f from storage", rt, diff)
			}
		}
	}
	if e.Buildings.Count > s.Population && s.Population > 0 {
		warn("more buildings (%d) than villagers (%d)", e.Buildings.Count, s.Population)
	}
	if e.Production.Food > 0 && e.Consumption.Food > 10*e.Production.Food {
		warn("food consumption %.2f dwarfs production %.2f", e.Consumption.Food, e.Production.Food)
	}

	return res
}

// Correct clamps every out-of-range field in place and reports whether
// anything changed. Each repaired value is logged individually. A nil
// storage pile is rebuilt empty; a nil economy record is left for
// ResetToDefaults.
func (g *Guard) Correct(s *village.Settlement) (changed bool) {
	if s == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			g.record(ErrorRecord{
				SettlementID: settlementID(s),
				Kind:         KindValidation,
				Message:      fmt.Sprintf("panic while correcting: %v", r),
				Recovery:     "partial correction kept",
			})
		}
	}()

	clampInt := func(field string, v *int, r Range) {
		if fixed, ok := r.ClampInt(*v); ok {
			g.logCorrection(s.ID, field, float64(*v), float64(fixed))
			*v = fixed
			changed = true
		}
	}
	clampFloat := func(field string, v *float64, r Range) {
		if fixed, ok := r.Clamp(*v); ok {
			g.logCorrection(s.ID, field, *v, fixed)
			*v = fixed
			changed = true
		}
	}

	clampInt("population", &s.Population, PopulationRange)
	clampInt("radius", &s.Radius, RadiusRange)

	if s.Storage == nil {
		s.Storage = &village.Storage{}
		changed = true
		g.record(ErrorRecord{
			SettlementID: s.ID,
			Kind:         KindDataIntegrity,
			Message:      "storage was missing",
			Recovery:     "rebuilt empty storage",
		})
	}
	clampFloat("storage.food", &s.Storage.Food, AmountRange)
	clampFloat("storage.wood", &s.Storage.Wood, AmountRange)
	clampFloat("storage.ore", &s.Storage.Ore, AmountRange)

	if s.Economy == nil {
		return changed
	}

	e := s.Economy
	clampFloat("production.food", &e.Production.Food, RateRange)
	clampFloat("production.wood", &e.Production.Wood, RateRange)
	clampFloat("production.ore", &e.Production.Ore, RateRange)
	clampFloat("consumption.food", &e.Consumption.Food, RateRange)
	clampFloat("consumption.wood", &e.Consumption.Wood, RateRange)
	clampFloat("consumption.ore", &e.Consumption.Ore, RateRange)
	clampFloat("stock.food", &e.Stock.Food, AmountRange)
	clampFloat("stock.wood", &e.Stock.Wood, AmountRange)
	clampFloat("stock.ore", &e.Stock.Ore, AmountRange)
	clampFloat("capacity", &e.Stock.Capacity, CapacityRange)
	clampInt("buildings.count", &e.Buildings.Count, BuildingRange)
	clampInt("buildings.target", &e.Buildings.Target, BuildingRange)
	clampInt("buildings.queue", &e.Buildings.Queue, BuildingRange)
	if e.Buildings.Progress < 0 || math.IsNaN(e.Buildings.Progress) || math.IsInf(e.Buildings.Progress, 0) {
		g.logCorrection(s.ID, "buildings.progress", e.Buildings.Progress, 0)
		e.Buildings.Progress = 0
		changed = true
	}

	return changed
}

func (g *Guard) logCorrection(id, field string, original, corrected float64) {
	rec := ErrorRecord{
		SettlementID: id,
		Kind:         KindDataIntegrity,
		Message:      fmt.Sprintf("%s %g out of range", field, original),
		Recovery:     "clamped to valid range",
	}
	// JSON cannot carry NaN or infinity; those originals live on only in
	// the message text.
	if !math.IsNaN(original) && !math.IsInf(original, 0) {
		o, c := original, corrected
		rec.Original = &o
		rec.Corrected = &c
	}
	g.record(rec)
}

// ResetToDefaults replaces a settlement's economy record wholesale:
// zero rates, stock mirrored from the storage pile, one building, all
// levels balanced. Used when the record is missing or too inconsistent
// to repair field by field.
func (g *Guard) ResetToDefaults(s *village.Settlement) {
	if s == nil {
		return
	}
	if s.Storage == nil {
		s.Storage = &village.Storage{}
	}

	rec := economy.NewRecord(CapacityRange.Default)
	rec.Stock.Amounts = s.Storage.Amounts()
	s.Economy = rec

	g.record(ErrorRecord{
		SettlementID: s.ID,
		Kind:         KindStateInconsistency,
		Message:      "economy record rebuilt",
		Recovery:     "reset to defaults, stock restored from storage",
	})
	g.logger.Warn("economy record reset", "settlement", s.Name, "id", s.ID)
}

func settlementID(s *village.Settlement) string {
	if s == nil {
		return ""
	}
	return s.ID
}
