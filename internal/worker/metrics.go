package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	spawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polyglot_worker_spawns_total",
			Help: "Total number of worker child processes spawned.",
		},
	)

	workersAlive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "polyglot_worker_alive",
			Help: "Number of worker child processes currently running.",
		},
	)

	forcedKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polyglot_worker_forced_kills_total",
			Help: "Total number of worker processes killed after the grace period expired.",
		},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polyglot_worker_command_seconds",
			Help:    "Round-trip duration of worker commands, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(spawnsTotal)
	prometheus.MustRegister(workersAlive)
	prometheus.MustRegister(forcedKillsTotal)
	prometheus.MustRegister(commandDuration)
}
