// Package api serves the simulation state over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints under /api/admin require a bearer token.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/tak458/trading-sim-sub000/internal/config"
	"github.com/tak458/trading-sim-sub000/internal/economy"
	"github.com/tak458/trading-sim-sub000/internal/engine"
	"github.com/tak458/trading-sim-sub000/internal/guard"
	"github.com/tak458/trading-sim-sub000/internal/persistence"
	"github.com/tak458/trading-sim-sub000/internal/village"
	"github.com/tak458/trading-sim-sub000/internal/world"
)

// Server serves the world state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for admin endpoints. Empty = admin disabled.

	// Run identity, echoed on /api/status and stamped into archives.
	RunID string
	Seed  int64

	// Directory for compressed state archives. Empty = DB-only snapshots.
	SnapshotDir string
}

// Routes builds the router. Split out from Start so tests can drive the
// handlers without a listening socket.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	// Public endpoints (read-only — anyone can check in on the world).
	r.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/settlements", s.handleSettlements).Methods("GET")
	r.HandleFunc("/api/settlements/{id}", s.handleSettlementDetail).Methods("GET")
	r.HandleFunc("/api/settlements/{id}/suppliers", s.handleSuppliers).Methods("GET")
	r.HandleFunc("/api/economy", s.handleEconomy).Methods("GET")
	r.HandleFunc("/api/map", s.handleMap).Methods("GET")
	r.HandleFunc("/api/events", s.handleEvents).Methods("GET")
	r.HandleFunc("/api/errors", s.handleErrors).Methods("GET")
	r.HandleFunc("/api/errors/stats", s.handleErrorStats).Methods("GET")
	r.HandleFunc("/api/config", s.handleConfig).Methods("GET")

	// Live frame stream.
	r.HandleFunc("/api/ws", s.handleWS).Methods("GET")

	// Admin endpoints (POST, bearer token).
	admin := r.PathPrefix("/api/admin").Subrouter()
	admin.Use(s.requireAdmin)
	admin.Use(NewRateLimiter(30, time.Minute).Middleware)
	admin.HandleFunc("/config", s.handleConfigUpdate).Methods("POST")
	admin.HandleFunc("/config/reset", s.handleConfigReset).Methods("POST")
	admin.HandleFunc("/errors/clear", s.handleErrorsClear).Methods("POST")
	admin.HandleFunc("/snapshot", s.handleSnapshot).Methods("POST")
	admin.HandleFunc("/speed", s.handleSpeed).Methods("POST")

	return r
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := handlers.LoggingHandler(os.Stdout, corsMiddleware(s.Routes()))
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// requireAdmin guards the admin subrouter with bearer token auth.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no TRADESIM_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":         "tradesim",
		"run_id":       s.RunID,
		"seed":         s.Seed,
		"tick":         s.Sim.CurrentTick(),
		"sim_time":     engine.SimTime(s.Sim.CurrentTick()),
		"speed":        s.Eng.Speed,
		"running":      s.Eng.Running,
		"settlements":  len(s.Sim.Settlements),
		"population":   s.Sim.Stats.TotalPopulation,
		"buildings":    s.Sim.Stats.TotalBuildings,
		"critical":     s.Sim.Stats.Critical,
		"shortage":     s.Sim.Stats.Shortage,
		"surplus":      s.Sim.Stats.Surplus,
		"guard_errors": s.Sim.Stats.GuardErrors,
	}
	writeJSON(w, status)
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	type settlementSummary struct {
		ID         string            `json:"id"`
		Name       string            `json:"name"`
		X          int               `json:"x"`
		Y          int               `json:"y"`
		Population int               `json:"population"`
		Radius     int               `json:"radius"`
		Trend      string            `json:"trend"`
		Buildings  int               `json:"buildings"`
		Storage    economy.Amounts   `json:"storage"`
		Status     economy.StatusSet `json:"status"`
	}

	var result []settlementSummary
	for _, v := range s.Sim.Settlements {
		sum := settlementSummary{
			ID:         v.ID,
			Name:       v.Name,
			X:          v.X,
			Y:          v.Y,
			Population: v.Population,
			Radius:     v.Radius,
			Trend:      v.Trend(),
		}
		if v.Storage != nil {
			sum.Storage = v.Storage.Amounts()
		}
		if v.Economy != nil {
			sum.Buildings = v.Economy.Buildings.Count
			sum.Status = v.Economy.Status
		}
		result = append(result, sum)
	}
	writeJSON(w, result)
}

func (s *Server) handleSettlementDetail(w http.ResponseWriter, r *http.Request) {
	v, ok := s.Sim.Index[mux.Vars(r)["id"]]
	if !ok {
		http.Error(w, "settlement not found", http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"settlement": v,
		"population": s.Sim.Population.Stats(v),
		"validation": s.Sim.Guard.Validate(v),
	})
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	v, ok := s.Sim.Index[mux.Vars(r)["id"]]
	if !ok {
		http.Error(w, "settlement not found", http.StatusNotFound)
		return
	}

	resource := economy.Food
	if q := r.URL.Query().Get("resource"); q != "" {
		switch rt := economy.ResourceType(q); rt {
		case economy.Food, economy.Wood, economy.Ore:
			resource = rt
		default:
			http.Error(w, "resource must be food, wood, or ore", http.StatusBadRequest)
			return
		}
	}

	maxDist := engine.SupplyScanRange
	if q := r.URL.Query().Get("range"); q != "" {
		if f, err := strconv.ParseFloat(q, 64); err == nil && f > 0 && f <= 1000 {
			maxDist = f
		}
	}

	suppliers := s.Sim.Classifier.RankSuppliers(v.EconomyView(), village.Views(s.Sim.Settlements), resource, maxDist)
	writeJSON(w, map[string]any{
		"settlement": v.Name,
		"resource":   resource,
		"range":      maxDist,
		"suppliers":  suppliers,
	})
}

func (s *Server) handleEconomy(w http.ResponseWriter, r *http.Request) {
	views := village.Views(s.Sim.Settlements)

	comparisons := make([]economy.Comparison, 0, 3)
	for _, rt := range economy.ResourceTypes() {
		comparisons = append(comparisons, s.Sim.Classifier.CompareSettlements(views, rt))
	}

	writeJSON(w, map[string]any{
		"comparisons": comparisons,
		"imbalance":   s.Sim.Classifier.IdentifyImbalanced(views),
	})
}

// handleMap returns the full grid for map renderers.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if s.Sim.Tiles == nil {
		http.Error(w, "map not generated", http.StatusServiceUnavailable)
		return
	}

	type tileEntry struct {
		X       int             `json:"x"`
		Y       int             `json:"y"`
		Terrain string          `json:"terrain"`
		Amount  economy.Amounts `json:"amount"`
	}

	type settlementEntry struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		X          int    `json:"x"`
		Y          int    `json:"y"`
		Population int    `json:"population"`
		Radius     int    `json:"radius"`
	}

	m := s.Sim.Tiles
	tiles := make([]tileEntry, 0, len(m.Tiles))
	for _, t := range m.Tiles {
		if t == nil {
			continue
		}
		tiles = append(tiles, tileEntry{
			X:       t.X,
			Y:       t.Y,
			Terrain: world.TerrainName(t.Terrain),
			Amount:  t.Amount,
		})
	}

	settlements := make([]settlementEntry, 0, len(s.Sim.Settlements))
	for _, v := range s.Sim.Settlements {
		settlements = append(settlements, settlementEntry{
			ID:         v.ID,
			Name:       v.Name,
			X:          v.X,
			Y:          v.Y,
			Population: v.Population,
			Radius:     v.Radius,
		})
	}

	writeJSON(w, map[string]any{
		"width":       m.Width,
		"height":      m.Height,
		"tiles":       tiles,
		"settlements": settlements,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.Events

	// Optional settlement filter — returns only events mentioning this settlement.
	if settlementName := r.URL.Query().Get("settlement"); settlementName != "" {
		var filtered []engine.Event
		for _, e := range events {
			if strings.Contains(e.Description, settlementName) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	if category := r.URL.Query().Get("category"); category != "" {
		var filtered []engine.Event
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var records []guard.ErrorRecord
	if id := r.URL.Query().Get("settlement"); id != "" {
		records = s.Sim.Guard.LogFor(id, limit)
	} else {
		records = s.Sim.Guard.Log(limit)
	}
	writeJSON(w, records)
}

func (s *Server) handleErrorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Guard.Stats())
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Params)
}

// handleConfigUpdate accepts a partial parameter set; omitted fields
// keep their current values. The sanitized set takes effect at the next
// tick boundary.
func (s *Server) handleConfigUpdate(w http.ResponseWriter, r *http.Request) {
	p := s.Sim.Params
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res := s.Sim.SetParams(p)
	slog.Info("config update queued", "valid", res.Valid, "errors", len(res.Errors), "warnings", len(res.Warnings))

	writeJSON(w, map[string]any{
		"result":  res,
		"applied": "next tick",
	})
}

func (s *Server) handleConfigReset(w http.ResponseWriter, r *http.Request) {
	def := config.Default()
	res := s.Sim.SetParams(def)
	slog.Info("config reset queued")

	writeJSON(w, map[string]any{
		"result": res,
		"params": def,
	})
}

func (s *Server) handleErrorsClear(w http.ResponseWriter, r *http.Request) {
	s.Sim.Guard.ClearLog()
	slog.Info("guard log cleared")
	writeJSON(w, map[string]any{"cleared": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	}

	// Also drop a compressed archive when a snapshot directory is set.
	if s.SnapshotDir != "" {
		snap := persistence.Capture(s.Sim, s.RunID, s.Seed)
		path := filepath.Join(s.SnapshotDir, fmt.Sprintf("tick%08d.zst", snap.Tick))
		if err := persistence.WriteSnapshot(path, snap); err != nil {
			slog.Error("snapshot archive failed", "error", err, "path", path)
		} else {
			resp["archive"] = path
		}
	}

	writeJSON(w, resp)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Speed < 0 || req.Speed > 1000 {
		http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
		return
	}

	s.Eng.Speed = req.Speed
	slog.Info("speed changed", "speed", req.Speed)
	writeJSON(w, map[string]float64{"speed": s.Eng.Speed})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
