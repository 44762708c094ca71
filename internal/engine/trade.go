// Hourly trade: neighbours even out gluts, and critical settlements
// get their supply options scanned.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

// Trade tuning. A settlement ships one unit per hour per resource to a
// needy neighbour once its own pile is comfortably full.
const (
	TradeRange     = 15.0
	TradeHighWater = 80.0
	TradeLowWater  = 10.0
	TradeUnit      = 1.0

	// SupplyScanRange is how far the hourly scan looks for suppliers
	// to a critical settlement.
	SupplyScanRange = 30.0
)

// runTrade moves single units between neighbours within range: from
// piles above the high-water mark into piles below the low-water mark.
// Resources are conserved exactly.
func (s *Simulation) runTrade(tick uint64) {
	for i, a := range s.Settlements {
		for _, b := range s.Settlements[i+1:] {
			if world.Distance(a.X, a.Y, b.X, b.Y) > TradeRange {
				continue
			}
			for _, rt := range economy.ResourceTypes() {
				s.transfer(tick, a, b, rt)
				s.transfer(tick, b, a, rt)
			}
		}
	}
}

func (s *Simulation) transfer(tick uint64, from, to *village.Settlement, rt economy.ResourceType) {
	if from.Storage == nil || to.Storage == nil {
		return
	}
	if from.Storage.Of(rt) <= TradeHighWater || to.Storage.Of(rt) >= TradeLowWater {
		return
	}

	from.Storage.Add(rt, -TradeUnit)
	to.Storage.Add(rt, TradeUnit)
	if from.Economy != nil {
		from.Economy.Stock.Set(rt, from.Storage.Of(rt))
	}
	if to.Economy != nil {
		to.Economy.Stock.Set(rt, to.Storage.Of(rt))
	}

	s.addEvent(tick, "trade", fmt.Sprintf("%s sends %s to %s", from.Name, rt, to.Name))
}

// scanSupplies ranks suppliers for every settlement with a critical
// resource. The ranking informs observers; it moves nothing itself.
func (s *Simulation) scanSupplies(tick uint64) {
	views := village.Views(s.Settlements)

	for _, v := range s.Settlements {
		if v.Economy == nil {
			continue
		}
		for _, rt := range economy.ResourceTypes() {
			if v.Economy.Status.Of(rt) != economy.LevelCritical {
				continue
			}
			suppliers := s.Classifier.RankSuppliers(v.EconomyView(), views, rt, SupplyScanRange)
			if len(suppliers) == 0 {
				s.addEvent(tick, "supply", fmt.Sprintf("%s finds no %s supplier in range", v.Name, rt))
				continue
			}
			slog.Debug("suppliers ranked",
				"settlement", v.Name,
				"resource", string(rt),
				"candidates", len(suppliers),
				"best", suppliers[0].Name,
			)
		}
	}
}
