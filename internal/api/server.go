// Package api provides the HTTP API for observing and poking a run.
// GET endpoints are public (read-only observation).
// Mutating endpoints require the admin bearer token; the frame stream
// requires the relay token.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/engine"
	"github.com/talgya/swift-dreams/internal/persistence"
	"github.com/talgya/swift-dreams/internal/world"
)

// Server serves the run state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; snapshots are refused without it
	Port     int
	AdminKey string // Bearer token for mutating endpoints. Empty = disabled.
	RelayKey string // Bearer token for the frame stream. Empty = streaming disabled.

	MaxStreamConns     int
	InterruptPerMinute int

	streamConns atomic.Int32
	upgrader    websocket.Upgrader
}

// NewServer builds a server from the API config.
func NewServer(sim *engine.Simulation, eng *engine.Engine, db *persistence.DB, cfg config.APIConfig) *Server {
	return &Server{
		Sim:                sim,
		Eng:                eng,
		DB:                 db,
		Port:               cfg.Port,
		AdminKey:           cfg.AdminKey,
		RelayKey:           cfg.RelayKey,
		MaxStreamConns:     cfg.MaxStreamConns,
		InterruptPerMinute: cfg.InterruptPerMinute,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	interruptLimiter := NewRateLimiter(s.InterruptPerMinute, time.Minute)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/agents", s.handleAgents)
	mux.HandleFunc("GET /api/v1/agent/{id}", s.handleAgent)
	mux.HandleFunc("GET /api/v1/destinations", s.handleDestinations)
	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/speed", s.handleSpeed)

	// Frame stream (relay token).
	mux.HandleFunc("GET /api/v1/stream", s.handleStream)

	// Admin endpoints.
	mux.HandleFunc("POST /api/v1/agent/{id}/interrupt", s.adminOnly(RateLimitMiddleware(interruptLimiter, s.handleInterrupt)))
	mux.HandleFunc("DELETE /api/v1/destination/{id}", s.adminOnly(s.handleRemoveDestination))
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("POST /api/v1/round/restart", s.adminOnly(s.handleRestartRound))
	mux.HandleFunc("POST /api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	handler := s.Handler()
	go func() {
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
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer extracts the bearer token, falling back to the "key" query
// parameter for websocket clients that cannot set headers.
func bearer(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("key")
}

// adminOnly wraps a handler to require the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no DWEEBS_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.AdminKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		engine.Status
		Speed float64 `json:"speed"`
	}{Status: s.Sim.Status(), Speed: s.speed()})
}

func (s *Server) speed() float64 {
	if s.Eng == nil {
		return 0
	}
	return s.Eng.Speed()
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	frames := s.Sim.AgentFrames()
	kind := r.URL.Query().Get("behavior")
	if kind == "" {
		writeJSON(w, frames)
		return
	}
	filtered := make([]engine.AgentFrame, 0, len(frames))
	for _, f := range frames {
		if f.Behavior.Kind == kind {
			filtered = append(filtered, f)
		}
	}
	writeJSON(w, filtered)
}

func agentID(r *http.Request) (agents.AgentID, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid agent id %q", r.PathValue("id"))
	}
	return agents.AgentID(id), nil
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	detail, err := s.Sim.Agent(id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, detail)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	id, err := agentID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Sim.Interrupt(id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"agent": id, "message": "interrupt queued"})
}

func (s *Server) handleDestinations(w http.ResponseWriter, r *http.Request) {
	statuses := s.Sim.DestinationStatuses()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		want, ok := world.ParseDestinationKind(kind)
		if !ok {
			http.Error(w, "unknown destination kind", http.StatusBadRequest)
			return
		}
		filtered := statuses[:0]
		for _, st := range statuses {
			if st.Kind == want {
				filtered = append(filtered, st)
			}
		}
		statuses = filtered
	}
	writeJSON(w, statuses)
}

func (s *Server) handleRemoveDestination(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid destination id", http.StatusBadRequest)
		return
	}
	if err := s.Sim.RemoveDestination(world.EntityID(id)); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, map[string]any{"destination": id, "message": "destination removed"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	events := s.Sim.RecentEvents(engine.MaxEvents)

	// Optional category filter.
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

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not available", http.StatusServiceUnavailable)
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
		if req.Speed < 0 || req.Speed > 100 {
			http.Error(w, "speed must be 0-100", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

func (s *Server) handleRestartRound(w http.ResponseWriter, r *http.Request) {
	s.Sim.RestartRound()
	writeJSON(w, s.Sim.Score.Snapshot())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
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

// handleStream upgrades to a websocket and pushes every published frame.
// Requires the relay token and limits concurrent connections.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.RelayKey == "" {
		http.Error(w, "streaming disabled (no relay key)", http.StatusForbidden)
		return
	}
	if bearer(r) != s.RelayKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if current := s.streamConns.Add(1); s.MaxStreamConns > 0 && int(current) > s.MaxStreamConns {
		s.streamConns.Add(-1)
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}
	defer s.streamConns.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("stream upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	subID, frames := s.Sim.Subscribe()
	defer s.Sim.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID, "remote", clientIP(r))

	// Reader: only watches for the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(f *engine.Frame) error {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(f)
	}
	if f := s.Sim.LastFrame(); f != nil {
		if err := send(f); err != nil {
			return
		}
	}

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := send(f); err != nil {
				slog.Debug("stream write failed", "sub_id", subID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		case <-r.Context().Done():
			return
		}
	}
}

// statusFor maps simulation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrAgentNotFound), errors.Is(err, engine.ErrDestinationNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotAsleep):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}
