package pool

import "github.com/prometheus/client_golang/prometheus"

var (
	workersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lmserv",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Workers by pool state.",
		},
		[]string{"state"},
	)

	waitingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lmserv",
			Subsystem: "pool",
			Name:      "waiting",
			Help:      "Callers blocked in Acquire.",
		},
	)

	respawnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lmserv",
			Subsystem: "pool",
			Name:      "respawns_total",
			Help:      "Dead workers replaced on release.",
		},
	)

	spawnFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "lmserv",
			Subsystem: "pool",
			Name:      "spawn_failures_total",
			Help:      "Worker spawns that failed during start or replacement.",
		},
	)

	acquireWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lmserv",
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "Time callers spent in Acquire.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(workersGauge, waitingGauge, respawnsTotal, spawnFailuresTotal, acquireWait)
}
