package economy

import (
	"math"
	"sort"
)

// Classifier turns production, consumption, and stock figures into
// supply levels. The three thresholds apply to the production over
// consumption ratio and must be ordered critical <= shortage <= surplus.
type Classifier struct {
	Surplus  float64
	Shortage float64
	Critical float64
}

// NewClassifier builds a classifier from explicit thresholds.
func NewClassifier(surplus, shortage, critical float64) *Classifier {
	return &Classifier{Surplus: surplus, Shortage: shortage, Critical: critical}
}

// Classify returns the supply level for one resource. With no
// consumption the ratio is undefined, so the stored quantity alone
// decides. Otherwise critical outranks everything, then surplus, then
// shortage; anything left is balanced.
func (c *Classifier) Classify(production, consumption, stock float64) Level {
	if consumption <= 0 {
		switch {
		case stock > 50:
			return LevelSurplus
		case stock > 20:
			return LevelBalanced
		case stock > 5:
			return LevelShortage
		default:
			return LevelCritical
		}
	}

	ratio := production / consumption
	stockDays := stock / consumption

	if ratio < c.Critical || stockDays < 1 {
		return LevelCritical
	}
	if ratio >= c.Surplus && stockDays > 10 {
		return LevelSurplus
	}
	if ratio < c.Shortage && stockDays < 5 {
		return LevelShortage
	}
	return LevelBalanced
}

// ClassifyRecord classifies every resource of a record in one pass.
func (c *Classifier) ClassifyRecord(r *Record) StatusSet {
	var s StatusSet
	for _, rt := range ResourceTypes() {
		s.Set(rt, c.Classify(r.Production.Of(rt), r.Consumption.Of(rt), r.Stock.Of(rt)))
	}
	return s
}

// Metric is one settlement's standing for a single resource, used when
// comparing settlements against each other.
type Metric struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Level     Level   `json:"level"`
	Net       float64 `json:"net"`
	StockDays float64 `json:"stock_days"`
}

// StockDaysUnlimited stands in for the stock-days figure of a
// settlement that consumes nothing. IEEE infinity does not survive JSON
// encoding, so metrics carry this sentinel instead.
const StockDaysUnlimited = 1e9

// Comparison groups settlements by their supply level for one resource.
type Comparison struct {
	Resource ResourceType `json:"resource"`
	Surplus  []Metric     `json:"surplus"`
	Balanced []Metric     `json:"balanced"`
	Shortage []Metric     `json:"shortage"`
	Critical []Metric     `json:"critical"`
}

// CompareSettlements buckets the given settlements by their level for
// one resource. Each bucket is sorted healthiest first: descending net
// rate, ties broken by stock days. Settlements without a record are
// skipped.
func (c *Classifier) CompareSettlements(settlements []SettlementEconomy, rt ResourceType) Comparison {
	cmp := Comparison{Resource: rt}
	for _, s := range settlements {
		if s.Record == nil {
			continue
		}
		prod := s.Record.Production.Of(rt)
		cons := s.Record.Consumption.Of(rt)
		stock := s.Record.Stock.Of(rt)

		m := Metric{
			ID:    s.ID,
			Name:  s.Name,
			Level: c.Classify(prod, cons, stock),
			Net:   prod - cons,
		}
		if cons > 0 {
			m.StockDays = stock / cons
		} else {
			m.StockDays = StockDaysUnlimited
		}

		switch m.Level {
		case LevelSurplus:
			cmp.Surplus = append(cmp.Surplus, m)
		case LevelBalanced:
			cmp.Balanced = append(cmp.Balanced, m)
		case LevelShortage:
			cmp.Shortage = append(cmp.Shortage, m)
		case LevelCritical:
			cmp.Critical = append(cmp.Critical, m)
		}
	}

	byHealth := func(ms []Metric) {
		sort.SliceStable(ms, func(i, j int) bool {
			if ms[i].Net != ms[j].Net {
				return ms[i].Net > ms[j].Net
			}
			return ms[i].StockDays > ms[j].StockDays
		})
	}
	byHealth(cmp.Surplus)
	byHealth(cmp.Balanced)
	byHealth(cmp.Shortage)
	byHealth(cmp.Critical)
	return cmp
}

// Imbalance lists the settlements holding each non-balanced level on at
// least one resource. A settlement can appear in several groups when
// different resources sit at different extremes.
type Imbalance struct {
	Surplus  []SettlementEconomy `json:"surplus"`
	Shortage []SettlementEconomy `json:"shortage"`
	Critical []SettlementEconomy `json:"critical"`
}

// IdentifyImbalanced scans current statuses and collects every
// settlement with at least one resource in surplus, shortage, or
// critical. Statuses are read as stored on the record, not recomputed.
func (c *Classifier) IdentifyImbalanced(settlements []SettlementEconomy) Imbalance {
	var im Imbalance
	for _, s := range settlements {
		if s.Record == nil {
			continue
		}
		if s.Record.Status.Has(LevelSurplus) {
			im.Surplus = append(im.Surplus, s)
		}
		if s.Record.Status.Has(LevelShortage) {
			im.Shortage = append(im.Shortage, s)
		}
		if s.Record.Status.Has(LevelCritical) {
			im.Critical = append(im.Critical, s)
		}
	}
	return im
}

// Supplier is one ranked candidate for sourcing a resource.
type Supplier struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Distance        float64 `json:"distance"`
	AvailableSupply float64 `json:"available_supply"`
	Capacity        float64 `json:"capacity"`
}

// RankSuppliers ranks candidate settlements as sources of one resource
// for the target. Only candidates within maxDistance whose status for
// the resource is surplus qualify. Available supply is the net
// production rate plus a tenth of the stock above a three-day reserve;
// effective capacity decays linearly with distance, floored at 10%.
// Results are sorted best first; candidates with no effective capacity
// are dropped.
func (c *Classifier) RankSuppliers(target SettlementEconomy, candidates []SettlementEconomy, rt ResourceType, maxDistance float64) []Supplier {
	if maxDistance <= 0 {
		return nil
	}

	var out []Supplier
	for _, cand := range candidates {
		if cand.ID == target.ID || cand.Record == nil {
			continue
		}
		dist := math.Hypot(float64(cand.X-target.X), float64(cand.Y-target.Y))
		if dist > maxDistance {
			continue
		}
		if cand.Record.Status.Of(rt) != LevelSurplus {
			continue
		}

		prod := cand.Record.Production.Of(rt)
		cons := cand.Record.Consumption.Of(rt)
		stock := cand.Record.Stock.Of(rt)

		available := math.Max(0, prod-cons) + 0.1*math.Max(0, stock-3*cons)
		capacity := available * math.Max(0.1, 1-dist/maxDistance)
		if capacity <= 0 {
			continue
		}

		out = append(out, Supplier{
			ID:              cand.ID,
			Name:            cand.Name,
			Distance:        dist,
			AvailableSupply: available,
			Capacity:        capacity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Capacity > out[j].Capacity
	})
	return out
}
