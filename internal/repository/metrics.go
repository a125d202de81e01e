package repository

import "github.com/prometheus/client_golang/prometheus"

// Eviction results.
const (
	resultStopped = "stopped"
	resultBusy    = "busy"
	resultError   = "error"
	resultAdmin   = "admin"
)

var (
	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polyglot_repository_evictions_total",
			Help: "Idle and admin eviction attempts by result.",
		},
		[]string{"result"},
	)

	translateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "polyglot_repository_translate_seconds",
			Help:    "Duration of repository translations including any cold start, in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

func init() {
	prometheus.MustRegister(evictionsTotal)
	prometheus.MustRegister(translateDuration)
}
