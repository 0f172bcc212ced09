package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "action_tracker",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Number of scheduled reconciliation runs, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "action_tracker",
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Time spent reconciling one action.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	sweepsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "action_tracker",
		Subsystem: "scheduler",
		Name:      "traffic_sweeps_total",
		Help:      "Number of traffic sweeps, labeled by outcome.",
	}, []string{"outcome"})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "action_tracker",
		Subsystem: "scheduler",
		Name:      "traffic_sweep_duration_seconds",
		Help:      "Time spent sweeping traffic for every accessible repository.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(runsCounter, runDuration, sweepsCounter, sweepDuration)
}

func recordRun(action, outcome string, elapsed time.Duration) {
	runsCounter.WithLabelValues(action, outcome).Inc()
	runDuration.Observe(elapsed.Seconds())
}

func recordSweep(outcome string, elapsed time.Duration) {
	sweepsCounter.WithLabelValues(outcome).Inc()
	sweepDuration.Observe(elapsed.Seconds())
}
