package persistence

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/engine"
	"github.com/tak458/trading-sim-sub000/internal/entropy"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	t.Setenv("DB_DIALECT", "sqlite")
	t.Setenv("DB_SQLITE_PATH", "")

	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSettlement(name string, x, y int) *village.Settlement {
	s := village.New(name, x, y)
	s.Population = 23
	s.Radius = 2
	s.Storage.Food = 41.5
	s.Storage.Wood = 12.25
	s.Storage.Ore = 3.5
	s.History = []int{20, 21, 23}
	s.LastUpdate = 99
	s.Economy.Production = economy.Amounts{Food: 5.5, Wood: 1.25, Ore: 0.5}
	s.Economy.Consumption = economy.Amounts{Food: 4.6}
	s.Economy.Stock.Amounts = s.Storage.Amounts()
	s.Economy.Stock.Capacity = 150
	s.Economy.Buildings = economy.Buildings{Count: 2, Target: 2, Queue: 1, Progress: 30}
	s.Economy.Status = economy.StatusSet{
		Food: economy.LevelBalanced,
		Wood: economy.LevelSurplus,
		Ore:  economy.LevelShortage,
	}
	return s
}

func TestSettlementRoundTrip(t *testing.T) {
	db := openTestDB(t)

	has, err := db.HasState()
	if err != nil {
		t.Fatalf("HasState: %v", err)
	}
	if has {
		t.Fatal("fresh database reports state")
	}

	a := sampleSettlement("Oatmere", 3, 4)
	b := sampleSettlement("Fenholt", 12, 9)
	if err := db.SaveSettlements([]*village.Settlement{a, b}); err != nil {
		t.Fatalf("SaveSettlements: %v", err)
	}

	has, err = db.HasState()
	if err != nil {
		t.Fatalf("HasState: %v", err)
	}
	if !has {
		t.Fatal("saved database reports no state")
	}

	loaded, err := db.LoadSettlements()
	if err != nil {
		t.Fatalf("LoadSettlements: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d settlements, want 2", len(loaded))
	}

	byID := make(map[string]*village.Settlement)
	for _, s := range loaded {
		byID[s.ID] = s
	}
	got, ok := byID[a.ID]
	if !ok {
		t.Fatalf("settlement %s missing after load", a.Name)
	}

	if got.Name != a.Name || got.X != a.X || got.Y != a.Y {
		t.Errorf("identity mismatch: got %s (%d,%d)", got.Name, got.X, got.Y)
	}
	if got.Population != 23 || got.Radius != 2 {
		t.Errorf("population/radius = %d/%d, want 23/2", got.Population, got.Radius)
	}
	if got.LastUpdate != 99 {
		t.Errorf("LastUpdate = %v, want 99", got.LastUpdate)
	}
	if !reflect.DeepEqual(got.History, []int{20, 21, 23}) {
		t.Errorf("History = %v", got.History)
	}
	if got.Storage.Food != 41.5 || got.Storage.Wood != 12.25 || got.Storage.Ore != 3.5 {
		t.Errorf("storage = %+v", got.Storage)
	}
	if got.Economy.Production != a.Economy.Production {
		t.Errorf("production = %+v", got.Economy.Production)
	}
	if got.Economy.Consumption != a.Economy.Consumption {
		t.Errorf("consumption = %+v", got.Economy.Consumption)
	}
	if got.Economy.Stock.Amounts != got.Storage.Amounts() {
		t.Errorf("stock %+v does not mirror storage %+v", got.Economy.Stock.Amounts, got.Storage.Amounts())
	}
	if got.Economy.Stock.Capacity != 150 {
		t.Errorf("capacity = %v, want 150", got.Economy.Stock.Capacity)
	}
	if got.Economy.Buildings != a.Economy.Buildings {
		t.Errorf("buildings = %+v", got.Economy.Buildings)
	}
	if got.Economy.Status != a.Economy.Status {
		t.Errorf("status = %+v", got.Economy.Status)
	}
}

func TestSaveSettlementsReplacesPrior(t *testing.T) {
	db := openTestDB(t)

	a := sampleSettlement("Oatmere", 3, 4)
	b := sampleSettlement("Fenholt", 12, 9)
	if err := db.SaveSettlements([]*village.Settlement{a, b}); err != nil {
		t.Fatalf("first save: %v", err)
	}

	a.Population = 30
	if err := db.SaveSettlements([]*village.Settlement{a}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := db.LoadSettlements()
	if err != nil {
		t.Fatalf("LoadSettlements: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d settlements, want 1", len(loaded))
	}
	if loaded[0].ID != a.ID || loaded[0].Population != 30 {
		t.Errorf("got %s pop %d, want %s pop 30", loaded[0].ID, loaded[0].Population, a.ID)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	events := []engine.Event{
		{Tick: 5, Description: "Oatmere grows to 11 villagers", Category: "population"},
		{Tick: 6, Description: "Oatmere starts a new building", Category: "construction"},
		{Tick: 7, Description: "Fenholt food supply turns critical", Category: "supply"},
	}
	if err := db.SaveEvents(events); err != nil {
		t.Fatalf("SaveEvents: %v", err)
	}

	loaded, err := db.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if !reflect.DeepEqual(loaded, events) {
		t.Errorf("loaded %+v, want %+v", loaded, events)
	}

	// A later save with an empty ring clears the table.
	if err := db.SaveEvents(nil); err != nil {
		t.Fatalf("SaveEvents(nil): %v", err)
	}
	loaded, err = db.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents after clear: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("loaded %d events after clear, want 0", len(loaded))
	}
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetMeta("seed"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing key error = %v, want sql.ErrNoRows", err)
	}

	if err := db.SaveMeta("seed", "42"); err != nil {
		t.Fatalf("SaveMeta: %v", err)
	}
	v, err := db.GetMeta("seed")
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if v != "42" {
		t.Errorf("seed = %q, want 42", v)
	}

	if err := db.SaveMeta("seed", "43"); err != nil {
		t.Fatalf("SaveMeta update: %v", err)
	}
	v, err = db.GetMeta("seed")
	if err != nil {
		t.Fatalf("GetMeta after update: %v", err)
	}
	if v != "43" {
		t.Errorf("seed = %q after update, want 43", v)
	}
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	t.Setenv("DB_DIALECT", "oracle")
	if _, err := Open(filepath.Join(t.TempDir(), "state.db")); err == nil {
		t.Fatal("Open accepted an unknown dialect")
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	t.Setenv("DB_DIALECT", "postgres")
	t.Setenv("DB_POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(""); err == nil {
		t.Fatal("Open accepted postgres without a DSN")
	}
}

func TestSaveState(t *testing.T) {
	db := openTestDB(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sim := engine.NewSimulation(config.Default(), nil,
		[]*village.Settlement{sampleSettlement("Oatmere", 3, 4)},
		entropy.NewSeeded(1), logger)
	sim.Events = append(sim.Events, engine.Event{Tick: 1, Description: "x", Category: "population"})

	if err := db.SaveState(sim); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	loaded, err := db.LoadSettlements()
	if err != nil {
		t.Fatalf("LoadSettlements: %v", err)
	}
	if len(loaded) != 1 {
		t.Errorf("loaded %d settlements, want 1", len(loaded))
	}
	events, err := db.LoadEvents()
	if err != nil {
		t.Fatalf("LoadEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("loaded %d events, want 1", len(events))
	}
	tick, err := db.GetMeta("last_tick")
	if err != nil {
		t.Fatalf("GetMeta last_tick: %v", err)
	}
	if tick != "0" {
		t.Errorf("last_tick = %q, want 0", tick)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := Snapshot{
		Header: Header{Version: 1, RunID: "run-1", Tick: 42},
		Seed:   7,
		Width:  16,
		Height: 16,
		Params: config.Default(),
		Settlements: []*village.Settlement{
			sampleSettlement("Oatmere", 3, 4),
		},
		Events: []engine.Event{
			{Tick: 40, Description: "Oatmere grows to 24 villagers", Category: "population"},
		},
	}

	path := filepath.Join(t.TempDir(), "snaps", "tick42.zst")
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if got.Header != snap.Header {
		t.Errorf("header = %+v, want %+v", got.Header, snap.Header)
	}
	if got.Seed != 7 || got.Width != 16 || got.Height != 16 {
		t.Errorf("world info = seed %d %dx%d", got.Seed, got.Width, got.Height)
	}
	if got.Params != snap.Params {
		t.Errorf("params = %+v", got.Params)
	}
	if len(got.Settlements) != 1 {
		t.Fatalf("loaded %d settlements, want 1", len(got.Settlements))
	}
	s := got.Settlements[0]
	if s.Name != "Oatmere" || s.Storage.Food != 41.5 || s.Economy.Buildings.Queue != 1 {
		t.Errorf("settlement state lost: %+v", s)
	}
	if !reflect.DeepEqual(got.Events, snap.Events) {
		t.Errorf("events = %+v", got.Events)
	}
}
