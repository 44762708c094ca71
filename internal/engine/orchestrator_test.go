package engine

import (
	"math"
	"testing"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

// flatMap builds a uniform map where every tile carries the given
// deposits at full fertility.
func flatMap(w, h int, amounts economy.Amounts) *world.TileMap {
	m := world.NewTileMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Set(&world.Tile{
				X: x, Y: y, Terrain: world.TerrainPlains,
				Amount: amounts, Max: amounts, Fertility: 1,
			})
		}
	}
	return m
}

func newOrchestrator(g *guard.Guard) *Orchestrator {
	p := config.Default()
	return NewOrchestrator(p, g, economy.NewClassifier(p.SurplusThreshold, p.ShortageThreshold, p.CriticalThreshold))
}

func TestOrchestratorUpdate(t *testing.T) {
	o := newOrchestrator(quietGuard())
	tiles := flatMap(9, 9, economy.Amounts{Food: 10, Wood: 4})

	s := village.New("Fenholt", 4, 4)
	s.Storage = &village.Storage{Food: 50, Wood: 30, Ore: 30}

	o.Update(s, tiles, Clock{Now: 7, Delta: 1})

	// Nine tiles in radius one, 10 food each, 10% extraction with a
	// 15% workforce and building bonus.
	wantFood := 90 * ExtractionRate * 1.15
	if math.Abs(s.Economy.Production.Food-wantFood) > 1e-9 {
		t.Errorf("food production = %v, want %v", s.Economy.Production.Food, wantFood)
	}
	if math.Abs(s.Economy.Consumption.Food-2) > 1e-9 {
		t.Errorf("food consumption = %v, want 2", s.Economy.Consumption.Food)
	}
	// No construction queued, so no material demand.
	if s.Economy.Consumption.Wood != 0 || s.Economy.Consumption.Ore != 0 {
		t.Errorf("material consumption = %+v, want zero", s.Economy.Consumption)
	}

	// Stock mirrors the pile; capacity follows the building stock.
	if s.Economy.Stock.Amounts != s.Storage.Amounts() {
		t.Errorf("stock %+v drifted from storage %+v", s.Economy.Stock.Amounts, s.Storage.Amounts())
	}
	if s.Economy.Stock.Capacity != 150 {
		t.Errorf("capacity = %v, want 100 + 50*1", s.Economy.Stock.Capacity)
	}

	// Classification ran: strong production and 25 days of food.
	if s.Economy.Status.Food != economy.LevelSurplus {
		t.Errorf("food status = %v, want surplus", s.Economy.Status.Food)
	}
	// Wood has stock but no demand: judged on the pile alone.
	if s.Economy.Status.Wood != economy.LevelBalanced {
		t.Errorf("wood status = %v, want balanced", s.Economy.Status.Wood)
	}
	if s.LastUpdate != 7 {
		t.Errorf("last update = %v, want 7", s.LastUpdate)
	}
}

func TestOrchestratorProductionCap(t *testing.T) {
	o := newOrchestrator(quietGuard())
	tiles := flatMap(3, 3, economy.Amounts{Food: 1})

	s := village.New("Fenholt", 1, 1)
	s.Population = 950 // workforce bonus would extract more than exists
	s.Storage = &village.Storage{Food: 50, Wood: 30, Ore: 30}

	o.Update(s, tiles, Clock{Now: 1, Delta: 1})

	avail := tiles.AmountsWithin(1, 1, s.Radius)
	if s.Economy.Production.Food > avail.Food+1e-9 {
		t.Errorf("production %v exceeds available %v", s.Economy.Production.Food, avail.Food)
	}
}

func TestOrchestratorSpoilage(t *testing.T) {
	o := newOrchestrator(quietGuard())
	tiles := flatMap(3, 3, economy.Amounts{})

	s := village.New("Fenholt", 1, 1)
	s.Storage = &village.Storage{Food: 500, Wood: 10, Ore: 10}

	o.Update(s, tiles, Clock{Now: 1, Delta: 1})

	if s.Storage.Food != 150 {
		t.Errorf("storage food = %v, want spoiled down to capacity 150", s.Storage.Food)
	}
	if s.Economy.Stock.Food != 150 {
		t.Errorf("stock food = %v, want 150", s.Economy.Stock.Food)
	}
}

func TestOrchestratorConstructionDemand(t *testing.T) {
	o := newOrchestrator(quietGuard())
	tiles := flatMap(3, 3, economy.Amounts{})

	s := village.New("Fenholt", 1, 1)
	s.Storage = &village.Storage{Food: 50, Wood: 30, Ore: 30}
	s.Economy.Buildings.Queue = 2

	o.Update(s, tiles, Clock{Now: 1, Delta: 1})

	wantWood := 2 * 10.0 / BuildTime
	wantOre := 2 * 5.0 / BuildTime
	if math.Abs(s.Economy.Consumption.Wood-wantWood) > 1e-9 {
		t.Errorf("wood demand = %v, want %v", s.Economy.Consumption.Wood, wantWood)
	}
	if math.Abs(s.Economy.Consumption.Ore-wantOre) > 1e-9 {
		t.Errorf("ore demand = %v, want %v", s.Economy.Consumption.Ore, wantOre)
	}
}

func TestOrchestratorRebuildsMissingRecord(t *testing.T) {
	g := quietGuard()
	o := newOrchestrator(g)
	tiles := flatMap(3, 3, economy.Amounts{Food: 5})

	s := village.New("Fenholt", 1, 1)
	s.Storage = &village.Storage{Food: 20, Wood: 5, Ore: 5}
	s.Economy = nil

	o.Update(s, tiles, Clock{Now: 1, Delta: 1})

	if s.Economy == nil {
		t.Fatal("record not rebuilt")
	}
	if s.Economy.Stock.Food != 20 {
		t.Errorf("stock food = %v, want restored 20", s.Economy.Stock.Food)
	}
	st := g.Stats()
	if st.ByKind[guard.KindStateInconsistency] == 0 {
		t.Error("rebuild must be logged")
	}
}

func TestOrchestratorNilTiles(t *testing.T) {
	o := newOrchestrator(quietGuard())

	s := village.New("Fenholt", 1, 1)
	s.Storage = &village.Storage{Food: 60, Wood: 60, Ore: 60}

	o.Update(s, nil, Clock{Now: 1, Delta: 1})

	if s.Economy.Production != (economy.Amounts{}) {
		t.Errorf("production = %+v, want zero without a map", s.Economy.Production)
	}
	// Stored piles still classify: no demand, 60 on hand.
	if s.Economy.Status.Wood != economy.LevelSurplus {
		t.Errorf("wood status = %v, want surplus from the pile", s.Economy.Status.Wood)
	}
}
