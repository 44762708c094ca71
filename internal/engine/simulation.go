// Simulation ties together all settlement systems and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/entropy"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

// Clock carries simulation time into the engines. Now is in time units
// since the run began; Delta is the span one tick covers.
type Clock struct {
	Now   float64
	Delta float64
}

// Event is a notable occurrence in the world.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "population", "construction", "supply", "trade", "config"
}

// SimStats tracks aggregate world statistics.
type SimStats struct {
	TotalPopulation int `json:"total_population"`
	TotalBuildings  int `json:"total_buildings"`
	Critical        int `json:"critical"`
	Shortage        int `json:"shortage"`
	Surplus         int `json:"surplus"`
	GuardErrors     int `json:"guard_errors"`
}

// Frame is the per-tick summary streamed to live observers.
type Frame struct {
	Tick  uint64   `json:"tick"`
	Time  string   `json:"time"`
	Stats SimStats `json:"stats"`
}

const maxEvents = 1000

// Simulation holds the complete world state and wires systems together.
// The tick loop is the single writer; observers read through the API.
type Simulation struct {
	Params      config.Params
	Tiles       *world.TileMap
	Settlements []*village.Settlement
	Index       map[string]*village.Settlement

	Guard      *guard.Guard
	Classifier *economy.Classifier

	Population   *PopulationEngine
	Construction *ConstructionEngine
	Orchestrator *Orchestrator

	Events   []Event
	LastTick uint64
	Stats    SimStats

	paramMu sync.Mutex
	pending *config.Params

	subMu       sync.Mutex
	subscribers map[chan Frame]struct{}
}

// NewSimulation wires a simulation from its generated components.
func NewSimulation(params config.Params, tiles *world.TileMap, settlements []*village.Settlement, rng entropy.Source, logger *slog.Logger) *Simulation {
	g := guard.New(logger)
	classifier := economy.NewClassifier(params.SurplusThreshold, params.ShortageThreshold, params.CriticalThreshold)

	index := make(map[string]*village.Settlement, len(settlements))
	for _, s := range settlements {
		index[s.ID] = s
	}

	sim := &Simulation{
		Params:       params,
		Tiles:        tiles,
		Settlements:  settlements,
		Index:        index,
		Guard:        g,
		Classifier:   classifier,
		Population:   NewPopulationEngine(params, g, rng),
		Construction: NewConstructionEngine(params, g),
		Orchestrator: NewOrchestrator(params, g, classifier),
		subscribers:  make(map[chan Frame]struct{}),
	}
	g.Clock = func() float64 { return float64(sim.LastTick) }
	sim.updateStats()
	return sim
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	return s.LastTick
}

// tickState is what TickMinute compares against to spot changes worth
// an event.
type tickState struct {
	population int
	count      int
	queue      int
	status     economy.StatusSet
}

func capture(v *village.Settlement) tickState {
	st := tickState{population: v.Population}
	if v.Economy != nil {
		st.count = v.Economy.Buildings.Count
		st.queue = v.Economy.Buildings.Queue
		st.status = v.Economy.Status
	}
	return st
}

// TickMinute runs every tick: the full economic pass for each
// settlement, harvesting, and land regrowth.
func (s *Simulation) TickMinute(tick uint64) {
	s.LastTick = tick
	s.applyPendingParams(tick)

	clk := Clock{Now: float64(tick), Delta: 1}

	for _, v := range s.Settlements {
		before := capture(v)

		s.Orchestrator.Update(v, s.Tiles, clk)
		s.harvest(v, clk)
		s.Population.Update(v, clk)
		s.Construction.Update(v, clk)

		s.emitChanges(tick, v, before)
	}

	if s.Tiles != nil {
		s.Tiles.Regenerate(clk.Delta)
	}
	s.updateStats()
	s.publish(Frame{Tick: tick, Time: SimTime(tick), Stats: s.Stats})
}

// harvest pulls this tick's production off the surrounding tiles into
// the storage pile. What the land cannot yield is simply not produced.
func (s *Simulation) harvest(v *village.Settlement, clk Clock) {
	if s.Tiles == nil || v.Economy == nil {
		return
	}
	want := v.Economy.Production.Scale(clk.Delta)
	taken := s.Tiles.Harvest(v.X, v.Y, v.Radius, want)

	capacity := v.Economy.Stock.Capacity
	for _, rt := range economy.ResourceTypes() {
		v.Storage.Add(rt, taken.Of(rt))
		if capacity > 0 && v.Storage.Of(rt) > capacity {
			v.Storage.Add(rt, capacity-v.Storage.Of(rt))
		}
	}
	v.Economy.Stock.Amounts = v.Storage.Amounts()
}

// emitChanges turns state transitions into events.
func (s *Simulation) emitChanges(tick uint64, v *village.Settlement, before tickState) {
	after := capture(v)

	if after.population > before.population {
		s.addEvent(tick, "population", fmt.Sprintf("%s grows to %d villagers", v.Name, after.population))
	} else if after.population < before.population {
		s.addEvent(tick, "population", fmt.Sprintf("%s shrinks to %d villagers", v.Name, after.population))
	}

	if after.queue > before.queue {
		s.addEvent(tick, "construction", fmt.Sprintf("%s starts a new building", v.Name))
	}
	if after.count > before.count {
		s.addEvent(tick, "construction", fmt.Sprintf("%s completes building %d", v.Name, after.count))
	}

	for _, rt := range economy.ResourceTypes() {
		from, to := before.status.Of(rt), after.status.Of(rt)
		if from == to {
			continue
		}
		if to == economy.LevelCritical {
			s.addEvent(tick, "supply", fmt.Sprintf("%s %s supply turns critical", v.Name, rt))
		} else if from == economy.LevelCritical {
			s.addEvent(tick, "supply", fmt.Sprintf("%s %s supply recovers from critical", v.Name, rt))
		}
	}
}

func (s *Simulation) addEvent(tick uint64, category, description string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: description, Category: category})
	// Trim old events to prevent unbounded growth.
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// TickHour runs every sim-hour: neighbourly trade and the supply scan.
func (s *Simulation) TickHour(tick uint64) {
	s.runTrade(tick)
	s.scanSupplies(tick)
}

// TickDay runs every sim-day: the daily report.
func (s *Simulation) TickDay(tick uint64) {
	eventCounts := make(map[string]int)
	for _, e := range s.Events {
		eventCounts[e.Category]++
	}

	slog.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"population", s.Stats.TotalPopulation,
		"buildings", s.Stats.TotalBuildings,
		"critical", s.Stats.Critical,
		"shortage", s.Stats.Shortage,
		"surplus", s.Stats.Surplus,
		"guard_errors", s.Stats.GuardErrors,
		"events_population", eventCounts["population"],
		"events_construction", eventCounts["construction"],
		"events_supply", eventCounts["supply"],
		"events_trade", eventCounts["trade"],
	)
}

// SetParams queues a sanitized parameter set to take effect at the
// next tick boundary. The validation result describes what, if
// anything, was adjusted or rejected on the way in.
func (s *Simulation) SetParams(p config.Params) config.Result {
	sanitized, res := p.Sanitize()

	s.paramMu.Lock()
	s.pending = &sanitized
	s.paramMu.Unlock()

	return res
}

// applyPendingParams swaps in a queued parameter set. Runs at the top
// of a tick, on the tick goroutine, so engines never see a mix.
func (s *Simulation) applyPendingParams(tick uint64) {
	s.paramMu.Lock()
	p := s.pending
	s.pending = nil
	s.paramMu.Unlock()

	if p == nil {
		return
	}

	s.Params = *p
	s.Classifier = economy.NewClassifier(p.SurplusThreshold, p.ShortageThreshold, p.CriticalThreshold)
	s.Population.SetParams(*p)
	s.Construction.SetParams(*p)
	s.Orchestrator.SetParams(*p, s.Classifier)

	s.addEvent(tick, "config", "balance parameters updated")
	slog.Info("parameters applied", "tick", tick)
}

// Subscribe registers a live observer. The returned channel receives
// one frame per tick; slow readers miss frames rather than stall the
// loop.
func (s *Simulation) Subscribe() chan Frame {
	ch := make(chan Frame, 8)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes an observer and closes its channel.
func (s *Simulation) Unsubscribe(ch chan Frame) {
	s.subMu.Lock()
	if _, ok := s.subscribers[ch]; ok {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.subMu.Unlock()
}

func (s *Simulation) publish(f Frame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- f:
		default:
		}
	}
}

func (s *Simulation) updateStats() {
	st := SimStats{}
	for _, v := range s.Settlements {
		st.TotalPopulation += v.Population
		if v.Economy == nil {
			continue
		}
		st.TotalBuildings += v.Economy.Buildings.Count
		if v.Economy.Status.Has(economy.LevelCritical) {
			st.Critical++
		}
		if v.Economy.Status.Has(economy.LevelShortage) {
			st.Shortage++
		}
		if v.Economy.Status.Has(economy.LevelSurplus) {
			st.Surplus++
		}
	}
	st.GuardErrors = s.Guard.Stats().Total
	s.Stats = st
}
