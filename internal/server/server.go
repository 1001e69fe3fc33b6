// Package server exposes the matchmaking core over HTTP: the SSE
// matchmaking stream, session reconnect/disconnect, search cancellation,
// popular interests, and operational endpoints.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tyron12233/animochat-match-server/internal/bus"
	"github.com/tyron12233/animochat-match-server/internal/config"
	"github.com/tyron12233/animochat-match-server/internal/matching"
	"github.com/tyron12233/animochat-match-server/internal/metrics"
	"github.com/tyron12233/animochat-match-server/internal/ratelimit"
	"github.com/tyron12233/animochat-match-server/internal/session"
)

// Server wires the matchmaking components into HTTP handlers.
type Server struct {
	engine   *matching.Engine
	queue    *matching.Queue
	sessions *session.Manager
	bus      bus.Bus
	limiter  *ratelimit.Limiter
	rdb      *redis.Client
	cfg      config.Config

	instanceID  string
	start       time.Time
	maintenance atomic.Bool
}

// New creates the HTTP server facade.
func New(engine *matching.Engine, queue *matching.Queue, sessions *session.Manager, b bus.Bus, rdb *redis.Client, cfg config.Config, instanceID string) *Server {
	s := &Server{
		engine:     engine,
		queue:      queue,
		sessions:   sessions,
		bus:        b,
		limiter:    ratelimit.NewLimiter(rdb),
		rdb:        rdb,
		cfg:        cfg,
		instanceID: instanceID,
		start:      time.Now(),
	}
	s.maintenance.Store(cfg.Maintenance)
	return s
}

// Routes returns the request multiplexer with every endpoint registered.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /matchmaking", s.handleMatchmaking)
	mux.HandleFunc("GET /session/{userId}", s.handleSession)
	mux.HandleFunc("POST /session/disconnect", s.handleDisconnect)
	mux.HandleFunc("POST /cancel_matchmaking", s.handleCancel)
	mux.HandleFunc("GET /interests/popular", s.handlePopular)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /maintenance", s.handleMaintenanceState)
	mux.HandleFunc("POST /maintenance", s.handleMaintenanceToggle)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// writeJSON serializes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] write response: %v", err)
	}
}

// messageBody is the generic {"message": ...} response shape.
type messageBody struct {
	Message string `json:"message"`
}
