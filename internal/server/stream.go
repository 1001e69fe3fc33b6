package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tyron12233/animochat-match-server/internal/discovery"
	"github.com/tyron12233/animochat-match-server/internal/matching"
	"github.com/tyron12233/animochat-match-server/internal/metrics"
	"github.com/tyron12233/animochat-match-server/internal/protocol"
	"github.com/tyron12233/animochat-match-server/internal/ratelimit"
)

// keepAliveInterval paces SSE comment frames while a waiter is parked,
// so idle streams survive intermediaries.
const keepAliveInterval = 25 * time.Second

// handleMatchmaking serves GET /matchmaking?userId=<id>&interest=<csv>.
// The response is a server-sent event stream: either a single MATCHED
// frame (synchronous match), or WAITING followed by one MATCHED frame
// pushed via the notification bus when a partner arrives. The stream
// ends after MATCHED; closing it while waiting cancels the search.
func (s *Server) handleMatchmaking(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if s.maintenance.Load() {
		s.writeFrameStatus(w, flusher, http.StatusServiceUnavailable,
			mustFrame(protocol.NewMaintenance("Matchmaking is under maintenance. Please try again later.")))
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		s.writeFrameStatus(w, flusher, http.StatusBadRequest,
			mustFrame(protocol.NewError("userId is required")))
		return
	}

	var interests []string
	if csv := r.URL.Query().Get("interest"); csv != "" {
		interests = strings.Split(csv, ",")
	}

	if allowed, _ := s.limiter.Allow(r.Context(), userID, ratelimit.RuleSearch); !allowed {
		s.writeFrameStatus(w, flusher, http.StatusTooManyRequests,
			mustFrame(protocol.NewError("too many searches, slow down")))
		return
	}

	started := time.Now()
	match, err := s.engine.FindOrQueue(r.Context(), userID, interests)
	metrics.FindOrQueueDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.writeStreamError(w, flusher, err)
		return
	}

	if match != nil {
		frame, err := protocol.NewMatched(match.PartnerID, match.CommonInterests, match.ChatID, match.ChatServerURL)
		if err != nil {
			s.writeStreamError(w, flusher, err)
			return
		}
		s.writeFrameStatus(w, flusher, http.StatusOK, frame)
		return
	}

	// Waiting: park the stream until the bus delivers the match.
	delivery := make(chan []byte, 1)
	if err := s.bus.Subscribe(r.Context(), userID, func(payload []byte) {
		select {
		case delivery <- payload:
		default:
		}
	}); err != nil {
		s.writeStreamError(w, flusher, err)
		return
	}

	metrics.ActiveWaiters.Inc()
	defer func() {
		metrics.ActiveWaiters.Dec()
		// Idempotent: after a delivered match the queue state is
		// already gone and a late publish hits no handler.
		if err := s.engine.Cancel(context.Background(), userID); err != nil {
			log.Printf("[http] cleanup cancel %s: %v", userID, err)
		}
		if err := s.bus.Unsubscribe(userID); err != nil {
			log.Printf("[http] cleanup unsubscribe %s: %v", userID, err)
		}
	}()

	s.writeFrameStatus(w, flusher, http.StatusOK, mustFrame(protocol.NewWaiting()))

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload := <-delivery:
			writeFrame(w, flusher, payload)
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeStreamError maps engine errors onto a status code and a terminal
// ERROR frame.
func (s *Server) writeStreamError(w http.ResponseWriter, flusher http.Flusher, err error) {
	status := http.StatusInternalServerError
	message := "internal error"
	switch {
	case errors.Is(err, matching.ErrEmptyUserID):
		status = http.StatusBadRequest
		message = "userId is required"
	case errors.Is(err, discovery.ErrUnavailable):
		status = http.StatusServiceUnavailable
		message = "no chat server available"
	}
	log.Printf("[http] matchmaking error: %v", err)
	s.writeFrameStatus(w, flusher, status, mustFrame(protocol.NewError(message)))
}

// writeFrameStatus sets the HTTP status and emits one SSE data frame.
func (s *Server) writeFrameStatus(w http.ResponseWriter, flusher http.Flusher, status int, frame []byte) {
	w.WriteHeader(status)
	writeFrame(w, flusher, frame)
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, frame []byte) {
	fmt.Fprintf(w, "data: %s\n\n", frame)
	flusher.Flush()
}

// mustFrame is for frames built from static content, whose marshal
// cannot fail.
func mustFrame(frame []byte, err error) []byte {
	if err != nil {
		panic(err)
	}
	return frame
}
