// Package metrics provides Prometheus instrumentation for the moderation
// pipeline: outcome counters, claim/cleanup sweep results, pool saturation,
// and inference latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsProcessed counts finished pipeline runs, labeled by outcome:
	// "approved", "flagged", "blocked", "failed".
	RecordsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_records_processed_total",
		Help: "Pipeline runs completed, by automated outcome",
	}, []string{"outcome"})

	// RecordsClaimed counts rows claimed by the pending poller.
	RecordsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_records_claimed_total",
		Help: "Rows atomically claimed for processing",
	})

	// RecordsRequeued counts rows pushed back to PENDING, labeled by source:
	// "retry" (failed-poll) or "stale" (stuck-PROCESSING sweep).
	RecordsRequeued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_records_requeued_total",
		Help: "Rows returned to the pending queue",
	}, []string{"source"})

	// PoolInlineRuns counts submissions that ran on the poller goroutine
	// because the worker queue was full.
	PoolInlineRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "moderation_pool_inline_runs_total",
		Help: "Tasks executed inline due to worker pool saturation",
	})

	// CleanupResults counts cleanup actions, labeled by result:
	// "cleaned", "blob_delete_failed", "reference_clear_failed", "skipped".
	CleanupResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_cleanup_total",
		Help: "Cleanup sweep actions, by result",
	}, []string{"result"})

	// InferenceDuration records classifier latency in seconds.
	InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "moderation_inference_duration_seconds",
		Help:    "Time spent in preprocessing plus model inference",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// ManualReviews counts manual decisions, labeled "approved"/"rejected".
	ManualReviews = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_manual_reviews_total",
		Help: "Manual review decisions applied",
	}, []string{"decision"})
)

func init() {
	prometheus.MustRegister(
		RecordsProcessed,
		RecordsClaimed,
		RecordsRequeued,
		PoolInlineRuns,
		CleanupResults,
		InferenceDuration,
		ManualReviews,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
