package collector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	searchPagesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "action_tracker",
		Subsystem: "collector",
		Name:      "search_pages_total",
		Help:      "Number of code search pages fetched, grouped by outcome.",
	}, []string{"outcome"})

	rateLimitWaitCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "action_tracker",
		Subsystem: "collector",
		Name:      "rate_limit_waits_total",
		Help:      "Number of times a run slept waiting for a GitHub rate limit reset.",
	})

	metadataMissCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "action_tracker",
		Subsystem: "collector",
		Name:      "metadata_misses_total",
		Help:      "Number of best-effort enrichment fetches that failed, grouped by kind.",
	}, []string{"kind"})

	censusDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "action_tracker",
		Subsystem: "collector",
		Name:      "census_duration_seconds",
		Help:      "Time spent collecting one full usage snapshot.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	snapshotSizeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "action_tracker",
		Subsystem: "collector",
		Name:      "last_snapshot_size",
		Help:      "Number of distinct usages in the most recent snapshot per action.",
	}, []string{"action"})
)

func init() {
	prometheus.MustRegister(searchPagesCounter, rateLimitWaitCounter, metadataMissCounter, censusDuration, snapshotSizeGauge)
}

func recordSearchPage(outcome string) {
	searchPagesCounter.WithLabelValues(outcome).Inc()
}

func recordRateLimitWait() {
	rateLimitWaitCounter.Inc()
}

func recordMetadataMiss(kind string) {
	metadataMissCounter.WithLabelValues(kind).Inc()
}

func recordCensus(action string, size int, started time.Time) {
	censusDuration.Observe(time.Since(started).Seconds())
	snapshotSizeGauge.WithLabelValues(action).Set(float64(size))
}
