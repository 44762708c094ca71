package guard

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

func newTestGuard() *Guard {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// healthySettlement returns a settlement that passes validation with
// no warnings: storage and stock agree, everything in range.
func healthySettlement() *village.Settlement {
	s := village.New("Testford", 5, 5)
	s.Storage = &village.Storage{Food: 50, Wood: 30, Ore: 10}
	s.Economy.Stock.Amounts = s.Storage.Amounts()
	s.Economy.Stock.Capacity = 150
	s.Economy.Production = economy.Amounts{Food: 5, Wood: 2, Ore: 1}
	s.Economy.Consumption = economy.Amounts{Food: 2, Wood: 0, Ore: 0}
	return s
}

func TestValidateHealthy(t *testing.T) {
	g := newTestGuard()
	res := g.Validate(healthySettlement())
	if !res.IsValid {
		t.Fatalf("healthy settlement invalid: %v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*village.Settlement)
	}{
		{"nil storage", func(s *village.Settlement) { s.Storage = nil }},
		{"nil economy", func(s *village.Settlement) { s.Economy = nil }},
		{"population over cap", func(s *village.Settlement) { s.Population = 1001 }},
		{"negative population", func(s *village.Settlement) { s.Population = -10 }},
		{"radius zero", func(s *village.Settlement) { s.Radius = 0 }},
		{"negative storage", func(s *village.Settlement) { s.Storage.Food = -5 }},
		{"nan production", func(s *village.Settlement) { s.Economy.Production.Wood = math.NaN() }},
		{"capacity over cap", func(s *village.Settlement) { s.Economy.Stock.Capacity = 300000 }},
		{"building count over cap", func(s *village.Settlement) { s.Economy.Buildings.Count = 501 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGuard()
			s := healthySettlement()
			tt.mutate(s)
			if res := g.Validate(s); res.IsValid {
				t.Errorf("expected invalid, got %+v", res)
			}
		})
	}

	g := newTestGuard()
	if res := g.Validate(nil); res.IsValid {
		t.Error("nil settlement should be invalid")
	}
}

func TestValidateWarnings(t *testing.T) {
	g := newTestGuard()

	s := healthySettlement()
	s.Economy.Stock.Food += 5 // drift from storage
	res := g.Validate(s)
	if !res.IsValid {
		t.Fatalf("drift should not invalidate: %v", res.Errors)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected drift warning, got %v", res.Warnings)
	}

	s = healthySettlement()
	s.Economy.Buildings.Count = s.Population + 3
	if res := g.Validate(s); len(res.Warnings) == 0 {
		t.Error("expected building/population warning")
	}

	s = healthySettlement()
	s.Economy.Production.Food = 0.1
	s.Economy.Consumption.Food = 2
	if res := g.Validate(s); len(res.Warnings) == 0 {
		t.Error("expected consumption/production warning")
	}
}

func TestCorrectClampsNegativePopulation(t *testing.T) {
	g := newTestGuard()
	s := healthySettlement()
	s.Population = -10

	if !g.Correct(s) {
		t.Fatal("expected a correction")
	}
	if s.Population != 0 {
		t.Errorf("population = %d, want clamp to 0", s.Population)
	}

	log := g.Log(0)
	if len(log) != 1 {
		t.Fatalf("expected one log entry, got %d", len(log))
	}
	rec := log[0]
	if rec.Kind != KindDataIntegrity {
		t.Errorf("kind = %v, want data_integrity", rec.Kind)
	}
	if rec.Original == nil || *rec.Original != -10 {
		t.Errorf("original = %v, want -10", rec.Original)
	}
	if rec.Corrected == nil || *rec.Corrected != 0 {
		t.Errorf("corrected = %v, want 0", rec.Corrected)
	}
}

func TestCorrectRepairsEveryField(t *testing.T) {
	g := newTestGuard()
	s := healthySettlement()
	s.Radius = 99
	s.Storage.Wood = math.Inf(1)
	s.Economy.Stock.Ore = -3
	s.Economy.Production.Food = math.NaN()
	s.Economy.Buildings.Progress = -1

	if !g.Correct(s) {
		t.Fatal("expected corrections")
	}
	if s.Radius != 10 {
		t.Errorf("radius = %d, want 10", s.Radius)
	}
	if s.Storage.Wood != 0 {
		t.Errorf("storage wood = %v, want default 0 after Inf", s.Storage.Wood)
	}
	if s.Economy.Stock.Ore != 0 {
		t.Errorf("stock ore = %v, want 0", s.Economy.Stock.Ore)
	}
	if s.Economy.Production.Food != 0 {
		t.Errorf("production food = %v, want default 0 after NaN", s.Economy.Production.Food)
	}
	if s.Economy.Buildings.Progress != 0 {
		t.Errorf("progress = %v, want 0", s.Economy.Buildings.Progress)
	}

	// Corrected state passes validation cleanly.
	if res := g.Validate(s); !res.IsValid {
		t.Errorf("corrected settlement still invalid: %v", res.Errors)
	}

	// Non-finite originals must not reach the numeric log fields; the
	// log is served as JSON.
	for _, rec := range g.Log(0) {
		if rec.Original != nil && (math.IsNaN(*rec.Original) || math.IsInf(*rec.Original, 0)) {
			t.Errorf("record %q carries non-finite original", rec.Message)
		}
	}
}

func TestCorrectRebuildsNilStorage(t *testing.T) {
	g := newTestGuard()
	s := healthySettlement()
	s.Storage = nil

	if !g.Correct(s) {
		t.Fatal("expected a correction")
	}
	if s.Storage == nil {
		t.Fatal("storage not rebuilt")
	}
	if s.Storage.Food != 0 || s.Storage.Wood != 0 || s.Storage.Ore != 0 {
		t.Errorf("rebuilt storage not empty: %+v", s.Storage)
	}
}

func TestCorrectNoChange(t *testing.T) {
	g := newTestGuard()
	if g.Correct(healthySettlement()) {
		t.Error("healthy settlement should need no correction")
	}
	if len(g.Log(0)) != 0 {
		t.Error("no-op correction must not log")
	}
	if g.Correct(nil) {
		t.Error("nil settlement reports no change")
	}
}

func TestResetToDefaults(t *testing.T) {
	g := newTestGuard()
	s := healthySettlement()
	s.Economy = nil

	g.ResetToDefaults(s)

	if s.Economy == nil {
		t.Fatal("economy record not rebuilt")
	}
	if s.Economy.Stock.Food != 50 || s.Economy.Stock.Wood != 30 || s.Economy.Stock.Ore != 10 {
		t.Errorf("stock not restored from storage: %+v", s.Economy.Stock)
	}
	if s.Economy.Buildings.Count != 1 {
		t.Errorf("buildings = %d, want 1", s.Economy.Buildings.Count)
	}
	if s.Economy.Status != economy.AllBalanced() {
		t.Errorf("status = %+v, want balanced", s.Economy.Status)
	}
	if s.Economy.Production != (economy.Amounts{}) {
		t.Errorf("production = %+v, want zero", s.Economy.Production)
	}

	log := g.Log(0)
	if len(log) != 1 || log[0].Kind != KindStateInconsistency {
		t.Fatalf("expected one state_inconsistency entry, got %+v", log)
	}
}

func TestComputePanic(t *testing.T) {
	g := newTestGuard()

	got := Compute(g, "division", "s1", func() float64 {
		var zero int
		return float64(10 / zero)
	}, 7)
	if got != 7 {
		t.Errorf("got %v, want fallback 7", got)
	}

	log := g.Log(0)
	if len(log) != 1 || log[0].Kind != KindCalculation {
		t.Fatalf("expected calculation entry, got %+v", log)
	}
	if log[0].SettlementID != "s1" {
		t.Errorf("settlement = %q, want s1", log[0].SettlementID)
	}
}

func TestComputeNonFinite(t *testing.T) {
	g := newTestGuard()

	if got := Compute(g, "ratio", "s1", func() float64 { return math.NaN() }, 1.5); got != 1.5 {
		t.Errorf("NaN result: got %v, want fallback", got)
	}
	if got := Compute(g, "ratio", "s1", func() float64 { return math.Inf(-1) }, 2); got != 2 {
		t.Errorf("Inf result: got %v, want fallback", got)
	}

	fallback := economy.Amounts{Food: 1}
	got := Compute(g, "production", "s1", func() economy.Amounts {
		return economy.Amounts{Food: math.Inf(1), Wood: 2}
	}, fallback)
	if got != fallback {
		t.Errorf("Amounts with Inf: got %+v, want fallback", got)
	}

	if n := len(g.Log(0)); n != 3 {
		t.Errorf("log entries = %d, want 3", n)
	}
}

func TestComputePassThrough(t *testing.T) {
	g := newTestGuard()

	if got := Compute(g, "ok", "s1", func() float64 { return 42 }, 0); got != 42 {
		t.Errorf("got %v, want 42", got)
	}
	if got := Compute(g, "flag", "s1", func() bool { return true }, false); !got {
		t.Error("bool result should pass through")
	}
	if n := len(g.Log(0)); n != 0 {
		t.Errorf("clean computations must not log, got %d entries", n)
	}
}

func TestLogBoundAndOrder(t *testing.T) {
	g := newTestGuard()
	tick := 0.0
	g.Clock = func() float64 { tick++; return tick }

	for i := 0; i < 1200; i++ {
		g.record(ErrorRecord{
			SettlementID: "s1",
			Kind:         KindCalculation,
			Message:      fmt.Sprintf("entry %d", i),
		})
	}

	log := g.Log(0)
	if len(log) != maxLogEntries {
		t.Fatalf("log length = %d, want %d", len(log), maxLogEntries)
	}
	if log[len(log)-1].Message != "entry 1199" {
		t.Errorf("last entry = %q, want most recent", log[len(log)-1].Message)
	}
	if log[0].Message != "entry 200" {
		t.Errorf("first entry = %q, want oldest survivor", log[0].Message)
	}

	limited := g.Log(10)
	if len(limited) != 10 {
		t.Fatalf("Log(10) length = %d", len(limited))
	}
	if limited[9].Message != "entry 1199" {
		t.Errorf("limited window must end at the most recent entry, got %q", limited[9].Message)
	}
}

func TestLogForAndClear(t *testing.T) {
	g := newTestGuard()
	g.record(ErrorRecord{SettlementID: "a", Kind: KindCalculation, Message: "one"})
	g.record(ErrorRecord{SettlementID: "b", Kind: KindCalculation, Message: "two"})
	g.record(ErrorRecord{SettlementID: "a", Kind: KindDataIntegrity, Message: "three"})

	got := g.LogFor("a", 0)
	if len(got) != 2 {
		t.Fatalf("LogFor(a) = %d entries, want 2", len(got))
	}
	if got[1].Message != "three" {
		t.Errorf("most recent last, got %q", got[1].Message)
	}
	if one := g.LogFor("a", 1); len(one) != 1 || one[0].Message != "three" {
		t.Errorf("LogFor(a, 1) = %+v", one)
	}

	g.ClearLog()
	if len(g.Log(0)) != 0 {
		t.Error("log not cleared")
	}
}

func TestStats(t *testing.T) {
	g := newTestGuard()
	now := 0.0
	g.Clock = func() float64 { return now }

	now = 5
	g.record(ErrorRecord{SettlementID: "a", Kind: KindCalculation})
	now = 100
	g.record(ErrorRecord{SettlementID: "a", Kind: KindDataIntegrity})
	now = 110
	g.record(ErrorRecord{SettlementID: "b", Kind: KindDataIntegrity})

	now = 120
	st := g.Stats()
	if st.Total != 3 {
		t.Errorf("total = %d, want 3", st.Total)
	}
	if st.ByKind[KindDataIntegrity] != 2 || st.ByKind[KindCalculation] != 1 {
		t.Errorf("by kind = %+v", st.ByKind)
	}
	if st.BySettlement["a"] != 2 || st.BySettlement["b"] != 1 {
		t.Errorf("by settlement = %+v", st.BySettlement)
	}
	// Only the two entries inside the last 60 time units count.
	if st.LastHour != 2 {
		t.Errorf("last hour = %d, want 2", st.LastHour)
	}
}
