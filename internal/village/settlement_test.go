package village

import (
	"testing"

	"github.com/tak458/trading-sim-sub000/internal/economy"
)

func TestNewSettlement(t *testing.T) {
	s := New("Eastmill", 4, 7)

	if s.ID == "" {
		t.Error("expected a generated id")
	}
	if s.Population != 10 {
		t.Errorf("population = %d, want 10", s.Population)
	}
	if s.Radius != 1 {
		t.Errorf("radius = %d, want 1", s.Radius)
	}
	if s.Storage == nil {
		t.Fatal("storage must be allocated")
	}
	if s.Economy == nil {
		t.Fatal("economy record must be allocated")
	}
	if s.Economy.Buildings.Count != 1 {
		t.Errorf("buildings = %d, want 1", s.Economy.Buildings.Count)
	}
	if s.Economy.Status != economy.AllBalanced() {
		t.Errorf("status = %+v, want all balanced", s.Economy.Status)
	}
	if len(s.History) != 1 || s.History[0] != 10 {
		t.Errorf("history = %v, want seeded [10]", s.History)
	}

	other := New("Westmill", 0, 0)
	if other.ID == s.ID {
		t.Error("ids must be unique")
	}
}

func TestPushHistoryBound(t *testing.T) {
	s := New("Eastmill", 0, 0)
	for i := 0; i < 25; i++ {
		s.Population = 10 + i
		s.PushHistory()
	}
	if len(s.History) != HistoryMax {
		t.Fatalf("history length = %d, want %d", len(s.History), HistoryMax)
	}
	// Most recent sample is last.
	if got := s.History[len(s.History)-1]; got != 34 {
		t.Errorf("last sample = %d, want 34", got)
	}
	if got := s.History[0]; got != 25 {
		t.Errorf("oldest kept sample = %d, want 25", got)
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name    string
		history []int
		want    string
	}{
		{"too short", []int{10, 11}, "stable"},
		{"growing", []int{5, 10, 11, 12}, "growing"},
		{"declining", []int{12, 11, 10}, "declining"},
		{"flat", []int{10, 12, 10}, "stable"},
		{"dip then recover", []int{10, 8, 10}, "stable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("Eastmill", 0, 0)
			s.History = tt.history
			if got := s.Trend(); got != tt.want {
				t.Errorf("Trend(%v) = %q, want %q", tt.history, got, tt.want)
			}
		})
	}
}

func TestStorageHelpers(t *testing.T) {
	st := &Storage{Food: 5, Wood: 3, Ore: 1}
	st.Add(economy.Wood, 2)
	if st.Of(economy.Wood) != 5 {
		t.Errorf("wood = %v, want 5", st.Of(economy.Wood))
	}
	a := st.Amounts()
	if a.Food != 5 || a.Wood != 5 || a.Ore != 1 {
		t.Errorf("amounts = %+v", a)
	}
}

func TestViews(t *testing.T) {
	a := New("A", 0, 0)
	b := New("B", 3, 4)
	views := Views([]*Settlement{a, b})
	if len(views) != 2 {
		t.Fatalf("views = %d, want 2", len(views))
	}
	if views[1].X != 3 || views[1].Y != 4 {
		t.Errorf("position not carried: %+v", views[1])
	}
	if views[0].Record != a.Economy {
		t.Error("view must share the settlement's record")
	}
}
