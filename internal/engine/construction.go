// Construction: sizes the building stock to the population and works
// through a material-gated build queue.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

// BuildTime is how many time units one building takes to finish.
const BuildTime = 60.0

// ConstructionEngine advances settlement building stocks each tick.
type ConstructionEngine struct {
	cfg   config.Params
	guard *guard.Guard
}

// NewConstructionEngine builds the engine.
func NewConstructionEngine(cfg config.Params, g *guard.Guard) *ConstructionEngine {
	return &ConstructionEngine{cfg: cfg, guard: g}
}

// SetParams swaps the balance parameters. Called between ticks only.
func (ce *ConstructionEngine) SetParams(cfg config.Params) { ce.cfg = cfg }

// TargetCount is how many buildings a population warrants, at least one.
func (ce *ConstructionEngine) TargetCount(population int) int {
	n := int(float64(population) * ce.cfg.BuildingsPerPopulation)
	if n < 1 {
		n = 1
	}
	return n
}

// Cost returns the materials deducted when one build is queued.
func (ce *ConstructionEngine) Cost() economy.Amounts {
	return economy.Amounts{Wood: ce.cfg.BuildingWoodCost, Ore: ce.cfg.BuildingOreCost}
}

// Update advances one settlement's construction by one step. At most
// one build is queued per step, and only when the full material cost
// is in storage; the cost is taken up front. Queued builds then accrue
// progress and complete in order.
func (ce *ConstructionEngine) Update(s *village.Settlement, clk Clock) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("construction update failed", "settlement", s.Name, "panic", fmt.Sprint(r))
			ce.guard.ResetToDefaults(s)
		}
	}()

	ce.guard.Correct(s)
	if s.Economy == nil {
		ce.guard.ResetToDefaults(s)
	}
	b := &s.Economy.Buildings

	b.Target = guard.Compute(ce.guard, "building target", s.ID, func() int {
		return ce.TargetCount(s.Population)
	}, 1)

	if b.Count+b.Queue < b.Target &&
		s.Storage.Wood >= ce.cfg.BuildingWoodCost &&
		s.Storage.Ore >= ce.cfg.BuildingOreCost {
		s.Storage.Wood -= ce.cfg.BuildingWoodCost
		s.Storage.Ore -= ce.cfg.BuildingOreCost
		s.Economy.Stock.Wood = s.Storage.Wood
		s.Economy.Stock.Ore = s.Storage.Ore
		b.Queue++
	}

	if b.Queue > 0 {
		b.Progress += clk.Delta
		for b.Progress >= BuildTime && b.Queue > 0 {
			b.Progress -= BuildTime
			b.Queue--
			b.Count++
		}
		if b.Queue == 0 {
			b.Progress = 0
		}
	}

	ce.guard.Correct(s)
}
