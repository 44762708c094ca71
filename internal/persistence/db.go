// Package persistence stores simulation state in SQL so runs survive
// restarts. SQLite is the default backend; Postgres can be selected
// through the environment.
package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/engine"
	"github.com/tak458/trading-sim-sub000/internal/village"
)

// Dialect selects the backing SQL engine.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a SQL connection for simulation state persistence.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

// Open connects to the configured database and runs migrations.
// DB_DIALECT selects the engine: "sqlite" (the default) stores at the
// given path, overridable through DB_SQLITE_PATH; "postgres" reads its
// DSN from DB_POSTGRES_DSN or DATABASE_URL.
func Open(path string) (*DB, error) {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv("DB_DIALECT")))
	if raw == "" {
		raw = string(DialectSQLite)
	}
	dialect := Dialect(raw)

	var driver, dsn string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
		if env := strings.TrimSpace(os.Getenv("DB_SQLITE_PATH")); env != "" {
			path = env
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	case DialectPostgres:
		driver = "pgx"
		dsn = strings.TrimSpace(os.Getenv("DB_POSTGRES_DSN"))
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
		}
		if dsn == "" {
			return nil, errors.New("DB_DIALECT=postgres requires DB_POSTGRES_DSN or DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT %q", raw)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	// The only schema divergence between the dialects is the event id
	// column. DOUBLE PRECISION carries REAL affinity in SQLite.
	eventsID := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == DialectPostgres {
		eventsID = "BIGSERIAL PRIMARY KEY"
	}

	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		population INTEGER NOT NULL,
		radius INTEGER NOT NULL,
		last_update DOUBLE PRECISION NOT NULL,
		history_json TEXT NOT NULL,
		store_food DOUBLE PRECISION NOT NULL,
		store_wood DOUBLE PRECISION NOT NULL,
		store_ore DOUBLE PRECISION NOT NULL,
		prod_food DOUBLE PRECISION NOT NULL,
		prod_wood DOUBLE PRECISION NOT NULL,
		prod_ore DOUBLE PRECISION NOT NULL,
		cons_food DOUBLE PRECISION NOT NULL,
		cons_wood DOUBLE PRECISION NOT NULL,
		cons_ore DOUBLE PRECISION NOT NULL,
		capacity DOUBLE PRECISION NOT NULL,
		building_count INTEGER NOT NULL,
		building_target INTEGER NOT NULL,
		building_queue INTEGER NOT NULL,
		building_progress DOUBLE PRECISION NOT NULL,
		status_food TEXT NOT NULL,
		status_wood TEXT NOT NULL,
		status_ore TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id %s,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sim_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_events_category ON events(category);
	`, eventsID)

	_, err := db.conn.Exec(schema)
	return err
}

// settlementRow flattens a settlement for storage. Stock is not
// persisted separately: the storage pile is the source of truth and
// stock is rebuilt from it on load.
type settlementRow struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	X           int     `db:"x"`
	Y           int     `db:"y"`
	Population  int     `db:"population"`
	Radius      int     `db:"radius"`
	LastUpdate  float64 `db:"last_update"`
	HistoryJSON string  `db:"history_json"`
	StoreFood   float64 `db:"store_food"`
	StoreWood   float64 `db:"store_wood"`
	StoreOre    float64 `db:"store_ore"`
	ProdFood    float64 `db:"prod_food"`
	ProdWood    float64 `db:"prod_wood"`
	ProdOre     float64 `db:"prod_ore"`
	ConsFood    float64 `db:"cons_food"`
	ConsWood    float64 `db:"cons_wood"`
	ConsOre     float64 `db:"cons_ore"`
	Capacity    float64 `db:"capacity"`
	Count       int     `db:"building_count"`
	Target      int     `db:"building_target"`
	Queue       int     `db:"building_queue"`
	Progress    float64 `db:"building_progress"`
	StatusFood  string  `db:"status_food"`
	StatusWood  string  `db:"status_wood"`
	StatusOre   string  `db:"status_ore"`
}

const insertSettlementSQL = `INSERT INTO settlements
	(id, name, x, y, population, radius, last_update, history_json,
	 store_food, store_wood, store_ore,
	 prod_food, prod_wood, prod_ore,
	 cons_food, cons_wood, cons_ore,
	 capacity, building_count, building_target, building_queue, building_progress,
	 status_food, status_wood, status_ore)
	VALUES (:id, :name, :x, :y, :population, :radius, :last_update, :history_json,
	 :store_food, :store_wood, :store_ore,
	 :prod_food, :prod_wood, :prod_ore,
	 :cons_food, :cons_wood, :cons_ore,
	 :capacity, :building_count, :building_target, :building_queue, :building_progress,
	 :status_food, :status_wood, :status_ore)`

func toRow(s *village.Settlement) settlementRow {
	historyJSON, _ := json.Marshal(s.History)

	row := settlementRow{
		ID:          s.ID,
		Name:        s.Name,
		X:           s.X,
		Y:           s.Y,
		Population:  s.Population,
		Radius:      s.Radius,
		LastUpdate:  s.LastUpdate,
		HistoryJSON: string(historyJSON),
	}
	if s.Storage != nil {
		row.StoreFood = s.Storage.Food
		row.StoreWood = s.Storage.Wood
		row.StoreOre = s.Storage.Ore
	}
	if s.Economy != nil {
		row.ProdFood = s.Economy.Production.Food
		row.ProdWood = s.Economy.Production.Wood
		row.ProdOre = s.Economy.Production.Ore
		row.ConsFood = s.Economy.Consumption.Food
		row.ConsWood = s.Economy.Consumption.Wood
		row.ConsOre = s.Economy.Consumption.Ore
		row.Capacity = s.Economy.Stock.Capacity
		row.Count = s.Economy.Buildings.Count
		row.Target = s.Economy.Buildings.Target
		row.Queue = s.Economy.Buildings.Queue
		row.Progress = s.Economy.Buildings.Progress
		row.StatusFood = string(s.Economy.Status.Food)
		row.StatusWood = string(s.Economy.Status.Wood)
		row.StatusOre = string(s.Economy.Status.Ore)
	}
	return row
}

func fromRow(row settlementRow) *village.Settlement {
	var history []int
	if err := json.Unmarshal([]byte(row.HistoryJSON), &history); err != nil || len(history) == 0 {
		history = []int{row.Population}
	}

	storage := &village.Storage{Food: row.StoreFood, Wood: row.StoreWood, Ore: row.StoreOre}

	rec := &economy.Record{
		Production:  economy.Amounts{Food: row.ProdFood, Wood: row.ProdWood, Ore: row.ProdOre},
		Consumption: economy.Amounts{Food: row.ConsFood, Wood: row.ConsWood, Ore: row.ConsOre},
		Stock: economy.Stock{
			Amounts:  storage.Amounts(),
			Capacity: row.Capacity,
		},
		Buildings: economy.Buildings{
			Count:    row.Count,
			Target:   row.Target,
			Queue:    row.Queue,
			Progress: row.Progress,
		},
		Status: economy.StatusSet{
			Food: economy.ParseLevel(row.StatusFood),
			Wood: economy.ParseLevel(row.StatusWood),
			Ore:  economy.ParseLevel(row.StatusOre),
		},
	}

	return &village.Settlement{
		ID:         row.ID,
		Name:       row.Name,
		X:          row.X,
		Y:          row.Y,
		Population: row.Population,
		Radius:     row.Radius,
		Storage:    storage,
		History:    history,
		LastUpdate: row.LastUpdate,
		Economy:    rec,
	}
}

// SaveSettlements writes all settlements to the database (full replace).
func (db *DB) SaveSettlements(settlements []*village.Settlement) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM settlements"); err != nil {
		return err
	}

	for _, s := range settlements {
		if _, err := tx.NamedExec(insertSettlementSQL, toRow(s)); err != nil {
			return fmt.Errorf("insert settlement %s: %w", s.Name, err)
		}
	}

	return tx.Commit()
}

// LoadSettlements reads every stored settlement back into live state.
func (db *DB) LoadSettlements() ([]*village.Settlement, error) {
	var rows []settlementRow
	if err := db.conn.Select(&rows, "SELECT * FROM settlements"); err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}

	out := make([]*village.Settlement, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}

// HasState reports whether a previous run left settlements to resume
// from.
func (db *DB) HasState() (bool, error) {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(1) FROM settlements"); err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveEvents writes the current event ring to the database. A full
// replace, not an append: the stored copy mirrors the bounded ring
// exactly, so an emptied ring also empties the table.
func (db *DB) SaveEvents(events []engine.Event) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(tx.Rebind(
		"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)"))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(e.Tick, e.Description, e.Category); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadEvents returns the stored event ring in insertion order.
func (db *DB) LoadEvents() ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, description, category FROM events ORDER BY id")
	return events, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	q := db.conn.Rebind(`INSERT INTO sim_meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`)
	_, err := db.conn.Exec(q, key, value)
	return err
}

// GetMeta retrieves a metadata value. A missing key surfaces as
// sql.ErrNoRows.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, db.conn.Rebind("SELECT value FROM sim_meta WHERE key = ?"), key)
	return value, err
}

// SaveState performs a full save of the running simulation. Tiles are
// not stored; the map regenerates from the seed kept in metadata.
func (db *DB) SaveState(sim *engine.Simulation) error {
	slog.Info("saving state", "settlements", len(sim.Settlements), "tick", sim.CurrentTick())

	if err := db.SaveSettlements(sim.Settlements); err != nil {
		return fmt.Errorf("save settlements: %w", err)
	}
	if err := db.SaveEvents(sim.Events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", fmt.Sprintf("%d", sim.CurrentTick())); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	return nil
}
