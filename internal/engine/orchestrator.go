// The orchestrator runs the full economic pass for one settlement:
// production and consumption rates, stock synchronisation, capacity,
// and supply classification.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

// Production tuning. Extraction takes a fixed fraction of the nearby
// deposits per time unit; villagers and buildings raise it.
const (
	ExtractionRate          = 0.1
	PopProductionBonus      = 0.01
	BuildingProductionBonus = 0.05
)

// Orchestrator recomputes a settlement's economic record each tick.
type Orchestrator struct {
	cfg        config.Params
	guard      *guard.Guard
	classifier *economy.Classifier
}

// NewOrchestrator builds the orchestrator.
func NewOrchestrator(cfg config.Params, g *guard.Guard, c *economy.Classifier) *Orchestrator {
	return &Orchestrator{cfg: cfg, guard: g, classifier: c}
}

// SetParams swaps parameters and classifier. Called between ticks only.
func (o *Orchestrator) SetParams(cfg config.Params, c *economy.Classifier) {
	o.cfg = cfg
	o.classifier = c
}

// Update refreshes one settlement's record: rates from the surrounding
// tiles, stock mirrored from the storage pile, capacity from the
// building stock, and supply levels from the classifier. A missing
// record is rebuilt; a panic leaves a safe, balanced record behind.
func (o *Orchestrator) Update(s *village.Settlement, tiles *world.TileMap, clk Clock) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("economy update failed", "settlement", s.Name, "panic", fmt.Sprint(r))
			o.guard.Report(s.ID, guard.KindCalculation,
				fmt.Sprintf("economy pass panicked: %v", r), "record zeroed and rebalanced")
			o.recoverRecord(s)
		}
	}()

	if s.Economy == nil {
		o.guard.ResetToDefaults(s)
	}
	o.guard.Correct(s)

	avail := guard.Compute(o.guard, "local deposits", s.ID, func() economy.Amounts {
		if tiles == nil {
			return economy.Amounts{}
		}
		return tiles.AmountsWithin(s.X, s.Y, s.Radius)
	}, economy.Amounts{})

	s.Economy.Production = guard.Compute(o.guard, "production rates", s.ID, func() economy.Amounts {
		return o.production(s, avail)
	}, economy.Amounts{})

	s.Economy.Consumption = guard.Compute(o.guard, "consumption rates", s.ID, func() economy.Amounts {
		return o.consumption(s)
	}, economy.Amounts{})

	// Capacity follows the building stock; anything past it spoils.
	capacity, _ := guard.CapacityRange.Clamp(
		o.cfg.BaseStorageCapacity + o.cfg.StoragePerBuilding*float64(s.Economy.Buildings.Count))
	for _, rt := range economy.ResourceTypes() {
		if s.Storage.Of(rt) > capacity {
			s.Storage.Add(rt, capacity-s.Storage.Of(rt))
		}
	}

	// The pile is the source of truth; the record's stock mirrors it.
	s.Economy.Stock.Amounts = s.Storage.Amounts()
	s.Economy.Stock.Capacity = capacity

	s.Economy.Status = o.classifier.ClassifyRecord(s.Economy)
	s.LastUpdate = clk.Now
}

// production derives extraction rates from the deposits within the
// collection radius. Each rate is capped at what is actually there.
func (o *Orchestrator) production(s *village.Settlement, avail economy.Amounts) economy.Amounts {
	bonus := 1 + float64(s.Population)*PopProductionBonus +
		float64(s.Economy.Buildings.Count)*BuildingProductionBonus

	var p economy.Amounts
	for _, rt := range economy.ResourceTypes() {
		rate := avail.Of(rt) * ExtractionRate * bonus
		if rate > avail.Of(rt) {
			rate = avail.Of(rt)
		}
		p.Set(rt, rate)
	}
	return p
}

// consumption derives demand rates: food from the population, wood and
// ore from active construction amortised over the build time.
func (o *Orchestrator) consumption(s *village.Settlement) economy.Amounts {
	c := economy.Amounts{Food: foodDemand(o.cfg, s.Population)}
	if q := float64(s.Economy.Buildings.Queue); q > 0 {
		c.Wood = q * o.cfg.BuildingWoodCost / BuildTime
		c.Ore = q * o.cfg.BuildingOreCost / BuildTime
	}
	return c
}

// recoverRecord leaves a structurally valid record after a panic:
// zeroed rates, stock from the pile, everything balanced.
func (o *Orchestrator) recoverRecord(s *village.Settlement) {
	if s.Economy == nil {
		o.guard.ResetToDefaults(s)
		return
	}
	s.Economy.Production = economy.Amounts{}
	s.Economy.Consumption = economy.Amounts{}
	if s.Storage != nil {
		s.Economy.Stock.Amounts = s.Storage.Amounts()
	}
	s.Economy.Status = economy.AllBalanced()
}
