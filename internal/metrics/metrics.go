// Package metrics provides Prometheus instrumentation for the
// matchmaking core: waiter counts, match throughput, and find-or-enqueue
// latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveWaiters tracks the number of matchmaking streams currently
	// parked on this instance.
	ActiveWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "animochat_active_waiters",
		Help: "Current number of parked matchmaking streams on this instance",
	})

	// MatchesTotal counts pairs formed by this instance.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animochat_matches_total",
		Help: "Total number of pairs formed by this instance",
	})

	// EnqueuesTotal counts searches that ended in a waiting outcome.
	EnqueuesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animochat_enqueues_total",
		Help: "Total number of searches enqueued without an immediate match",
	})

	// CancelsTotal counts explicit and stream-close search cancellations.
	CancelsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "animochat_cancels_total",
		Help: "Total number of cancelled searches",
	})

	// FindOrQueueDuration records find-or-enqueue latency in seconds.
	FindOrQueueDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "animochat_find_or_queue_seconds",
		Help:    "Find-or-enqueue latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ActiveWaiters,
		MatchesTotal,
		EnqueuesTotal,
		CancelsTotal,
		FindOrQueueDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
