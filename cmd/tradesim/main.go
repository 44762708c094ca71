// Command tradesim runs the village trade simulation and its HTTP API.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/tak458/trading-sim-sub000/internal/api"
	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/engine"
	"github.com/tak458/trading-sim-sub000/internal/entropy"
	"github.com/tak458/trading-sim-sub000/internal/persistence"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevelFromEnv(),
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	seed := envInt64OrDefault("SIM_SEED", 0)
	dbPath := envOrDefault("DB_PATH", "data/tradesim.db")
	apiPort := envIntOrDefault("API_PORT", 8080)
	width := envIntOrDefault("MAP_WIDTH", 48)
	height := envIntOrDefault("MAP_HEIGHT", 48)
	villages := envIntOrDefault("SIM_SETTLEMENTS", 5)
	speed := envFloatOrDefault("SIM_SPEED", 1)
	cfgPath := envOrDefault("SIM_CONFIG", "")
	snapshotDir := envOrDefault("SNAPSHOT_DIR", "data/snapshots")

	// ── Balance parameters ────────────────────────────────────────────
	params, res, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	params, res = config.FromEnv(params).Sanitize()
	for _, iss := range res.Errors {
		slog.Warn("parameter clamped", "field", iss.Field, "value", iss.Value, "used", iss.Suggested)
	}
	for _, iss := range res.Warnings {
		slog.Warn("parameter outside recommended range", "field", iss.Field, "value", iss.Value)
	}

	// ── Database ──────────────────────────────────────────────────────
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	resume, err := db.HasState()
	if err != nil {
		slog.Error("failed to check saved state", "error", err)
		os.Exit(1)
	}

	runID := uuid.New().String()
	if resume {
		// A resumed run must rebuild the identical map, so the stored
		// identity wins over the environment.
		if v, ok := metaInt64(db, "seed"); ok {
			seed = v
		}
		if v, ok := metaInt64(db, "map_width"); ok {
			width = int(v)
		}
		if v, ok := metaInt64(db, "map_height"); ok {
			height = int(v)
		}
		if v, err := db.GetMeta("run_id"); err == nil {
			runID = v
		}
	} else if seed == 0 {
		seed = entropy.RandomSeed()
		slog.Info("no seed configured, drew one", "seed", seed)
	}

	// ── World map (always regenerated — deterministic from seed) ──────
	gen := world.DefaultGenConfig()
	gen.Seed = seed
	gen.Width = width
	gen.Height = height
	tiles := world.Generate(gen)

	for t, c := range world.TerrainCounts(tiles) {
		slog.Info("terrain", "type", world.TerrainName(t), "count", c)
	}

	// ── Load or found settlements ─────────────────────────────────────
	var settlements []*village.Settlement
	var startTick uint64

	if resume {
		settlements, err = db.LoadSettlements()
		if err != nil {
			slog.Error("failed to load settlements", "error", err)
			os.Exit(1)
		}
		if v, ok := metaInt64(db, "last_tick"); ok {
			startTick = uint64(v)
		}
		slog.Info("state restored",
			"settlements", len(settlements),
			"tick", startTick,
			"sim_time", engine.SimTime(startTick),
		)
	} else {
		slog.Info("no saved state found, founding settlements...")
		for _, sd := range world.PlaceSettlements(tiles, villages, seed) {
			v := village.New(sd.Name, sd.X, sd.Y)
			v.Storage.Add(economy.Food, 50)
			v.Storage.Add(economy.Wood, 30)
			v.Storage.Add(economy.Ore, 10)
			v.Economy.Stock.Amounts = v.Storage.Amounts()
			settlements = append(settlements, v)
			slog.Info("settlement founded", "name", v.Name, "x", v.X, "y", v.Y)
		}
		if len(settlements) == 0 {
			slog.Error("map has no settleable sites", "seed", seed)
			os.Exit(1)
		}
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(params, tiles, settlements, entropy.NewSeeded(seed), logger)
	sim.LastTick = startTick

	if resume {
		if evs, err := db.LoadEvents(); err == nil {
			sim.Events = evs
		} else {
			slog.Warn("failed to load events", "error", err)
		}
	} else {
		if err := db.SaveState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
		saveMeta(db, "run_id", runID)
		saveMeta(db, "seed", strconv.FormatInt(seed, 10))
		saveMeta(db, "map_width", strconv.Itoa(width))
		saveMeta(db, "map_height", strconv.Itoa(height))
	}

	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.Speed = speed

	// Wire tick callbacks — auto-save every sim-day.
	eng.OnTick = sim.TickMinute
	eng.OnHour = sim.TickHour
	eng.OnDay = func(tick uint64) {
		sim.TickDay(tick)
		if err := db.SaveState(sim); err != nil {
			slog.Error("daily save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("TRADESIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("TRADESIM_ADMIN_KEY not set — admin endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:         sim,
		Eng:         eng,
		DB:          db,
		Port:        apiPort,
		AdminKey:    adminKey,
		RunID:       runID,
		Seed:        seed,
		SnapshotDir: snapshotDir,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\n%d settlements on a %dx%d map, seed %d.\n", len(settlements), width, height, seed)
	fmt.Printf("API: http://localhost:%d/api/status\n", apiPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, engine.SimTime(startTick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. State saved.")
}

func logLevelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloatOrDefault(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// metaInt64 reads one integer metadata key, reporting whether it was
// present and parseable.
func metaInt64(db *persistence.DB, key string) (int64, bool) {
	v, err := db.GetMeta(key)
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func saveMeta(db *persistence.DB, key, value string) {
	if err := db.SaveMeta(key, value); err != nil {
		slog.Error("meta save failed", "key", key, "error", err)
	}
}
