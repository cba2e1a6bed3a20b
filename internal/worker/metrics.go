package worker

import "github.com/prometheus/client_golang/prometheus"

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lmserv",
			Subsystem: "worker",
			Name:      "turns_total",
			Help:      "Completed inference turns by end reason.",
		},
		[]string{"reason"},
	)

	fragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lmserv",
			Subsystem: "worker",
			Name:      "fragments_total",
			Help:      "Output fragments yielded to callers.",
		},
	)

	turnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lmserv",
			Subsystem: "worker",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one inference turn.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	spawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lmserv",
			Subsystem: "worker",
			Name:      "spawn_duration_seconds",
			Help:      "Time from process start to ready banner.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 45, 90, 300, 600},
		},
	)

	startupFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lmserv",
			Subsystem: "worker",
			Name:      "startup_failures_total",
			Help:      "Spawns that never became ready, by cause.",
		},
		[]string{"cause"},
	)
)

func init() {
	prometheus.MustRegister(turnsTotal, fragmentsTotal, turnDuration, spawnDuration, startupFailuresTotal)
}
