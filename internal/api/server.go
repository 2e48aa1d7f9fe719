// Package api provides the HTTP API for observing a colony run.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/mouldnet/internal/agents"
	"github.com/talgya/mouldnet/internal/engine"
	"github.com/talgya/mouldnet/internal/graph"
	"github.com/talgya/mouldnet/internal/persistence"
)

// Server serves the colony state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine     // Optional; speed control is unavailable without it
	DB       *persistence.DB    // Optional; snapshots are unavailable without it
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// AgentLimiter throttles the full agent dump. Nil uses 60 requests/minute.
	AgentLimiter *RateLimiter
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	if s.AgentLimiter == nil {
		s.AgentLimiter = NewRateLimiter(60, time.Minute)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/agents", RateLimitMiddleware(s.AgentLimiter, s.handleAgents))
	mux.HandleFunc("/api/v1/food", s.handleFood)
	mux.HandleFunc("/api/v1/spread", s.handleSpread)
	mux.HandleFunc("/api/v1/events", s.handleEvents)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/target", s.adminOnly(s.handleTarget))

	return corsMiddleware(mux)
}

// ListenAndServe serves the API until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.AgentLimiter.RunCleanup(ctx)

	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "")

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set MOULD_CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("MOULD_CORS_ORIGINS"); env != "" {
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

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through (for endpoints that support both GET and POST).
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no MOULD_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Sim.StatsSnapshot()
	status := map[string]any{
		"name":   "mouldnet",
		"tick":   s.Sim.CurrentTick(),
		"target": s.Sim.Target(),
		"grid": map[string]int{
			"width":  s.Sim.Config.GridWidth,
			"height": s.Sim.Config.GridHeight,
		},
		"stats": snap,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
	}
	writeJSON(w, status)
}

// handleAgents returns every agent, optionally filtered by ?kind=food|slime.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != agents.KindFood.String() && kind != agents.KindSlime.String() {
		http.Error(w, "kind must be food or slime", http.StatusBadRequest)
		return
	}

	snap := s.Sim.Snapshot()
	if kind != "" {
		filtered := make([]engine.AgentView, 0, len(snap.Agents))
		for _, a := range snap.Agents {
			if a.Kind == kind {
				filtered = append(filtered, a)
			}
		}
		snap.Agents = filtered
	}
	writeJSON(w, snap)
}

func (s *Server) handleFood(w http.ResponseWriter, r *http.Request) {
	type foodEntry struct {
		FoodID  agents.FoodID `json:"food_id"`
		X       int           `json:"x"`
		Y       int           `json:"y"`
		Reached bool          `json:"reached"`
		Target  bool          `json:"target,omitempty"`
	}

	reached := make(map[agents.FoodID]bool)
	for _, id := range s.Sim.ReachedSet() {
		reached[id] = true
	}
	target := s.Sim.Target()

	positions := s.Sim.FoodPositions()
	result := make([]foodEntry, len(positions))
	for i, p := range positions {
		id := agents.FoodID(i)
		result[i] = foodEntry{FoodID: id, X: p.X, Y: p.Y, Reached: reached[id], Target: id == target}
	}
	writeJSON(w, result)
}

// handleSpread returns the spread graph as JSON, or Graphviz with ?format=dot.
func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	rendered := s.Sim.RenderSpread()
	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, rendered)
	case "dot":
		w.Header().Set("Content-Type", "text/vnd.graphviz")
		fmt.Fprint(w, graph.RenderDOT("spread", rendered))
	default:
		http.Error(w, "format must be json or dot", http.StatusBadRequest)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(limit)
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not running", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
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
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if err := s.DB.SaveWorldState(s.Sim); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"tick":    s.Sim.CurrentTick(),
		"message": "snapshot saved",
	})
}

// handleTarget reads or changes the food the colony routes toward.
func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			FoodID *int `json:"food_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FoodID == nil {
			http.Error(w, "body must be {\"food_id\": n}", http.StatusBadRequest)
			return
		}
		if err := s.Sim.SetTarget(agents.FoodID(*req.FoodID)); err != nil {
			if errors.Is(err, engine.ErrUnknownFood) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		slog.Info("target changed", "food_id", *req.FoodID)
	}

	writeJSON(w, map[string]any{"target": s.Sim.Target()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
