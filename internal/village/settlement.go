// Package village models settlements: identity, position, population,
// the raw storage pile, and the per-settlement economic record derived
// from it.
package village

import (
	"github.com/google/uuid"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

// HistoryMax bounds the population history ring.
const HistoryMax = 10

// Storage is the raw resource pile a settlement draws from. The
// economic record mirrors these quantities into its stock; this struct
// stays the single written source.
type Storage struct {
	Food float64 `json:"food"`
	Wood float64 `json:"wood"`
	Ore  float64 `json:"ore"`
}

// Of returns the stored quantity of one resource type.
func (s *Storage) Of(rt economy.ResourceType) float64 {
	switch rt {
	case economy.Food:
		return s.Food
	case economy.Wood:
		return s.Wood
	case economy.Ore:
		return s.Ore
	}
	return 0
}

// Add changes the stored quantity of one resource type by delta.
func (s *Storage) Add(rt economy.ResourceType, delta float64) {
	switch rt {
	case economy.Food:
		s.Food += delta
	case economy.Wood:
		s.Wood += delta
	case economy.Ore:
		s.Ore += delta
	}
}

// Amounts converts the pile into an economy value.
func (s *Storage) Amounts() economy.Amounts {
	return economy.Amounts{Food: s.Food, Wood: s.Wood, Ore: s.Ore}
}

// Settlement is one village on the map.
type Settlement struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	X          int      `json:"x"`
	Y          int      `json:"y"`
	Population int      `json:"population"`
	Radius     int      `json:"radius"`
	Storage    *Storage `json:"storage"`
	History    []int    `json:"history"`
	LastUpdate float64  `json:"last_update"`

	Economy *economy.Record `json:"economy"`
}

// New creates a settlement at the given position with the starting
// state: ten villagers, one building, a collection radius of one tile,
// and balanced supply levels. The storage pile starts empty; world
// placement seeds it afterwards.
func New(name string, x, y int) *Settlement {
	s := &Settlement{
		ID:         uuid.New().String(),
		Name:       name,
		X:          x,
		Y:          y,
		Population: 10,
		Radius:     1,
		Storage:    &Storage{},
		Economy:    economy.NewRecord(0),
	}
	s.History = append(s.History, s.Population)
	return s
}

// PushHistory appends the current population to the history ring,
// dropping the oldest sample past HistoryMax.
func (s *Settlement) PushHistory() {
	s.History = append(s.History, s.Population)
	if len(s.History) > HistoryMax {
		s.History = s.History[len(s.History)-HistoryMax:]
	}
}

// Trend summarises the recent population direction from the last three
// history samples: "growing", "declining", or "stable". Fewer than
// three samples always read as stable.
func (s *Settlement) Trend() string {
	if len(s.History) < 3 {
		return "stable"
	}
	recent := s.History[len(s.History)-3:]
	switch {
	case recent[2] > recent[0]:
		return "growing"
	case recent[2] < recent[0]:
		return "declining"
	default:
		return "stable"
	}
}

// EconomyView adapts the settlement for the classifier.
func (s *Settlement) EconomyView() economy.SettlementEconomy {
	return economy.SettlementEconomy{
		ID:     s.ID,
		Name:   s.Name,
		X:      s.X,
		Y:      s.Y,
		Record: s.Economy,
	}
}

// Views adapts a slice of settlements for the classifier.
func Views(settlements []*Settlement) []economy.SettlementEconomy {
	out := make([]economy.SettlementEconomy, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, s.EconomyView())
	}
	return out
}
