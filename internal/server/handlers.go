package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/tyron12233/animochat-match-server/internal/metrics"
)

// topPopularInterests is how many entries /interests/popular returns.
const topPopularInterests = 8

// handleSession serves GET /session/{userId}: the reconnect lookup.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "userId is required"})
		return
	}

	record, err := s.sessions.GetForUser(r.Context(), userID)
	if err != nil {
		log.Printf("[http] session lookup %s: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "store unavailable"})
		return
	}
	if record == nil {
		writeJSON(w, http.StatusOK, messageBody{Message: "No active session for user"})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type userIDBody struct {
	UserID string `json:"userId"`
}

// handleDisconnect serves POST /session/disconnect: explicit termination
// of the caller's active session.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var body userIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "userId is required"})
		return
	}

	ended, err := s.sessions.End(r.Context(), strings.TrimSpace(body.UserID))
	if err != nil {
		log.Printf("[http] disconnect %s: %v", body.UserID, err)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "store unavailable"})
		return
	}
	if !ended {
		writeJSON(w, http.StatusNotFound, messageBody{Message: "No active session for user"})
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Session ended"})
}

// handleCancel serves POST /cancel_matchmaking: removes the caller from
// every queue they wait in.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body userIDBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "userId is required"})
		return
	}

	if err := s.engine.Cancel(r.Context(), strings.TrimSpace(body.UserID)); err != nil {
		log.Printf("[http] cancel %s: %v", body.UserID, err)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "store unavailable"})
		return
	}
	metrics.CancelsTotal.Inc()
	writeJSON(w, http.StatusOK, messageBody{Message: "Search cancelled"})
}

// handlePopular serves GET /interests/popular: the top interests by
// enrollment count inside the sliding window.
func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	if s.maintenance.Load() {
		writeJSON(w, http.StatusServiceUnavailable, messageBody{Message: "maintenance"})
		return
	}

	counts, err := s.engine.PopularInterests(r.Context(), topPopularInterests)
	if err != nil {
		log.Printf("[http] popular interests: %v", err)
		writeJSON(w, http.StatusInternalServerError, messageBody{Message: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type statusResponse struct {
	Service      string `json:"service"`
	State        string `json:"state"`
	Uptime       string `json:"uptime"`
	Host         string `json:"host"`
	InstanceID   string `json:"instanceId"`
	PublicURL    string `json:"publicUrl,omitempty"`
	Redis        string `json:"redis"`
	Bus          string `json:"bus"`
	ChatSessions int64  `json:"chatSessions"`
	WaitingUsers int64  `json:"waitingUsers"`
	Goroutines   int    `json:"goroutines"`
	AllocBytes   uint64 `json:"allocBytes"`
}

// handleStatus serves GET /status: service state, store connection
// states, store-wide session/waiter counts, uptime and memory.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	state := "ACTIVE"
	if s.maintenance.Load() {
		state = "MAINTENANCE"
	}

	redisState := "connected"
	if err := s.rdb.Ping(r.Context()).Err(); err != nil {
		redisState = "error: " + err.Error()
	}

	chatSessions, err := s.sessions.CountSessions(r.Context())
	if err != nil {
		log.Printf("[http] status session count: %v", err)
	}
	waiting, err := s.queue.CountWaiting(r.Context())
	if err != nil {
		log.Printf("[http] status waiter count: %v", err)
	}

	host, _ := os.Hostname()
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, statusResponse{
		Service:      "animochat-match-server",
		State:        state,
		Uptime:       time.Since(s.start).Round(time.Second).String(),
		Host:         host,
		InstanceID:   s.instanceID,
		PublicURL:    s.cfg.PublicURL,
		Redis:        redisState,
		Bus:          s.bus.State(),
		ChatSessions: chatSessions,
		WaitingUsers: waiting,
		Goroutines:   runtime.NumGoroutine(),
		AllocBytes:   mem.Alloc,
	})
}

// handleMaintenanceState serves GET /maintenance: 200 ACTIVE or
// 503 MAINTENANCE.
func (s *Server) handleMaintenanceState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.maintenance.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("MAINTENANCE"))
		return
	}
	w.Write([]byte("ACTIVE"))
}

// handleMaintenanceToggle serves POST /maintenance with
// {"enabled": bool}, flipping maintenance mode at runtime.
func (s *Server) handleMaintenanceToggle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: "enabled is required"})
		return
	}
	s.maintenance.Store(body.Enabled)
	log.Printf("[http] maintenance mode set to %v", body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"maintenance": body.Enabled})
}
