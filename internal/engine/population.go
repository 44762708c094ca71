// Population dynamics: food consumption, growth, decline, and the
// collection radius that follows settlement size.
package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/entropy"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

// Population limits. Growth stops at the cap; decline never empties a
// settlement completely.
const (
	MaxPopulation = 100
	MinPopulation = 1
)

// MaxRadius caps how far villagers collect resources.
const MaxRadius = 4

// PopulationEngine advances settlement populations each tick.
type PopulationEngine struct {
	cfg   config.Params
	guard *guard.Guard
	rng   entropy.Source
}

// NewPopulationEngine builds the engine. The source decides the
// probabilistic growth and decline rolls; a seeded source makes runs
// reproducible.
func NewPopulationEngine(cfg config.Params, g *guard.Guard, rng entropy.Source) *PopulationEngine {
	return &PopulationEngine{cfg: cfg, guard: g, rng: rng}
}

// SetParams swaps the balance parameters. Called between ticks only.
func (pe *PopulationEngine) SetParams(cfg config.Params) { pe.cfg = cfg }

// foodDemand is the settlement's total food consumption per time unit.
// Larger settlements eat slightly less per head, floored at 80%
// efficiency; tiny ones pay a small overhead. Never negative.
func foodDemand(cfg config.Params, population int) float64 {
	if population <= 0 {
		return 0
	}
	base := float64(population) * cfg.FoodPerCapita
	efficiency := 1 - float64(population-10)*0.002
	if efficiency < 0.8 {
		efficiency = 0.8
	}
	demand := base * efficiency
	if demand < 0 {
		return 0
	}
	return demand
}

// FoodConsumption returns the settlement-wide food demand per time
// unit for the given population.
func (pe *PopulationEngine) FoodConsumption(population int) float64 {
	return foodDemand(pe.cfg, population)
}

// CanGrow reports whether a settlement supports one more villager:
// below the cap, three days of food banked for the larger population,
// production covering its demand, and no food shortage in progress.
func (pe *PopulationEngine) CanGrow(s *village.Settlement) bool {
	if s.Population >= MaxPopulation || s.Economy == nil {
		return false
	}
	need := foodDemand(pe.cfg, s.Population+1)
	if s.Economy.Stock.Food < 3*need {
		return false
	}
	if s.Economy.Production.Food < need {
		return false
	}
	st := s.Economy.Status.Food
	return st != economy.LevelShortage && st != economy.LevelCritical
}

// ShouldDecline reports whether a settlement is starving: the pile is
// empty, or production has collapsed below 30% of demand while the
// food supply is rated critical. A lone villager endures.
func (pe *PopulationEngine) ShouldDecline(s *village.Settlement) bool {
	if s.Population <= MinPopulation || s.Economy == nil {
		return false
	}
	if s.Economy.Stock.Food <= 0 {
		return true
	}
	return s.Economy.Production.Food < 0.3*s.Economy.Consumption.Food &&
		s.Economy.Status.Food == economy.LevelCritical
}

// Update advances one settlement by one step: eat, then roll for
// decline or growth, then adjust the collection radius and record
// history. State is corrected on the way in and out; a panic rebuilds
// the record from defaults.
func (pe *PopulationEngine) Update(s *village.Settlement, clk Clock) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("population update failed", "settlement", s.Name, "panic", fmt.Sprint(r))
			pe.guard.ResetToDefaults(s)
		}
	}()

	pe.guard.Correct(s)
	if s.Economy == nil {
		pe.guard.ResetToDefaults(s)
	}

	// Consumption: eat from the pile, never below zero, and keep the
	// record's stock in step with it.
	demand := guard.Compute(pe.guard, "food demand", s.ID, func() float64 {
		return foodDemand(pe.cfg, s.Population)
	}, 0)
	eaten := math.Min(demand*clk.Delta, s.Storage.Food)
	if eaten > 0 {
		s.Storage.Food -= eaten
		s.Economy.Stock.Food = s.Storage.Food
	}

	decline := guard.Compute(pe.guard, "decline check", s.ID, func() bool {
		return pe.ShouldDecline(s)
	}, false)
	grow := guard.Compute(pe.guard, "growth check", s.ID, func() bool {
		return pe.CanGrow(s)
	}, false)

	switch {
	case decline:
		// Severity rises as the pile empties relative to demand.
		chance := guard.Compute(pe.guard, "decline chance", s.ID, func() float64 {
			severity := math.Max(1, 2-s.Economy.Stock.Food/math.Max(0.1, s.Economy.Consumption.Food))
			return pe.cfg.DeclineRate * clk.Delta * severity
		}, 0)
		if pe.rng.Float() < chance && s.Population > MinPopulation {
			s.Population--
			pe.shrinkRadius(s)
		}
	case grow:
		// Abundance scales the roll, capped at double the base rate.
		chance := guard.Compute(pe.guard, "growth chance", s.ID, func() float64 {
			abundance := math.Min(2, s.Economy.Stock.Food/(10*s.Economy.Consumption.Food))
			return pe.cfg.GrowthRate * clk.Delta * abundance
		}, 0)
		if pe.rng.Float() < chance && s.Population < MaxPopulation {
			s.Population++
			pe.growRadius(s)
		}
	}

	s.PushHistory()
	pe.guard.Correct(s)
}

// desiredRadius is the collection radius a population warrants.
func desiredRadius(population int) int {
	return population/20 + 1
}

// growRadius widens the collection radius when the settlement has
// outgrown it, up to the cap.
func (pe *PopulationEngine) growRadius(s *village.Settlement) {
	want := desiredRadius(s.Population)
	if want > MaxRadius {
		want = MaxRadius
	}
	if want > s.Radius {
		s.Radius = want
	}
}

// shrinkRadius narrows the radius when the population no longer
// supports it, never below one tile.
func (pe *PopulationEngine) shrinkRadius(s *village.Settlement) {
	want := desiredRadius(s.Population)
	if want < 1 {
		want = 1
	}
	if want < s.Radius {
		s.Radius = want
	}
}

// PopulationStats is one settlement's population summary.
type PopulationStats struct {
	Population    int     `json:"population"`
	Consumption   float64 `json:"consumption"`
	CanGrow       bool    `json:"can_grow"`
	ShouldDecline bool    `json:"should_decline"`
	Trend         string  `json:"trend"`
}

// Stats summarises a settlement's population state for observers.
func (pe *PopulationEngine) Stats(s *village.Settlement) PopulationStats {
	return PopulationStats{
		Population:    s.Population,
		Consumption:   foodDemand(pe.cfg, s.Population),
		CanGrow:       pe.CanGrow(s),
		ShouldDecline: pe.ShouldDecline(s),
		Trend:         s.Trend(),
	}
}
