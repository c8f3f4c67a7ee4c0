// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the badge engine.
var (
	// Counters.
	RecomputeRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_recompute_runs_total",
			Help: "Total badge recompute executions",
		},
		[]string{"trigger", "status"},
	)

	AssignmentChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badge_assignment_changes_total",
			Help: "Total assignment outcomes by change kind",
		},
		[]string{"change"},
	)

	RevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "badge_revocations_total",
			Help: "Total awards automatically revoked",
		},
	)

	// Gauges.
	ActiveBadgeHolders = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "badge_active_holders",
			Help: "Current number of users holding each badge",
		},
		[]string{"slug"},
	)

	CandidatesEvaluated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "badge_candidates_evaluated",
			Help: "Number of candidates in the last recompute run",
		},
	)

	// Histograms.
	RecomputeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "badge_recompute_duration_seconds",
			Help:    "Time taken to execute a badge recompute run",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
	)
)

// RecordRecomputeRun records a recompute execution.
func RecordRecomputeRun(trigger, status string) {
	RecomputeRunsTotal.WithLabelValues(trigger, status).Inc()
}

// RecordAssignmentChange records one assignment outcome.
func RecordAssignmentChange(change string) {
	AssignmentChangesTotal.WithLabelValues(change).Inc()
}

// RecordRevocations records n automatic revocations.
func RecordRevocations(n int) {
	RevocationsTotal.Add(float64(n))
}

// SetActiveBadgeHolders sets the number of active holders for a badge.
func SetActiveBadgeHolders(slug string, count int64) {
	ActiveBadgeHolders.WithLabelValues(slug).Set(float64(count))
}

// SetCandidatesEvaluated sets the candidate count of the last run.
func SetCandidatesEvaluated(count int) {
	CandidatesEvaluated.Set(float64(count))
}

// ObserveRecomputeDuration observes the duration of a recompute run.
func ObserveRecomputeDuration(seconds float64) {
	RecomputeDurationSeconds.Observe(seconds)
}
