package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	reconcileGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "action_tracker",
		Subsystem: "persistence",
		Name:      "last_reconcile_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed reconciliation per action.",
	}, []string{"action"})

	activeRepoGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "action_tracker",
		Subsystem: "persistence",
		Name:      "active_repos",
		Help:      "Active repository count per action as of the last committed run.",
	}, []string{"action"})

	trafficGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "action_tracker",
		Subsystem: "persistence",
		Name:      "last_traffic_fetch_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed traffic snapshot per repository.",
	}, []string{"repository"})
)

func init() {
	prometheus.MustRegister(reconcileGauge, activeRepoGauge, trafficGauge)
}

// RecordReconcileApplied updates the reconciliation watermark gauges.
func RecordReconcileApplied(action string, activeRepos int, ts time.Time) {
	if ts.IsZero() {
		return
	}
	reconcileGauge.WithLabelValues(action).Set(float64(ts.Unix()))
	activeRepoGauge.WithLabelValues(action).Set(float64(activeRepos))
}

// RecordTrafficApplied updates the traffic watermark gauge.
func RecordTrafficApplied(repository string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	trafficGauge.WithLabelValues(repository).Set(float64(ts.Unix()))
}
