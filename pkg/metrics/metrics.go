package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Total number of scheduler passes over enabled configurations",
		},
	)

	SchedulerUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_users_total",
			Help: "Per-user scheduling outcomes",
		},
		[]string{"outcome"}, // outcome: enqueued, skipped_pending, error
	)

	JobsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "email_jobs_enqueued_total",
			Help: "Total number of email processing jobs enqueued",
		},
	)

	EmailsProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emails_processed_count",
			Help: "Total number of emails handled by the processor",
		},
		[]string{"status"}, // status: posted, skipped, failed
	)

	ExtractorCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extractor_call_latency_ms",
			Help:    "LLM extraction call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"status"},
	)

	LedgerPostLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_post_latency_ms",
			Help:    "Ledger API transaction post latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"status"},
	)
)

// IncrementSchedulerRun counts one scheduler pass.
func IncrementSchedulerRun() {
	SchedulerRunsTotal.Inc()
}

// IncrementSchedulerUser counts a per-user scheduling outcome.
func IncrementSchedulerUser(outcome string) {
	SchedulerUsersTotal.WithLabelValues(outcome).Inc()
}

// IncrementJobsEnqueued counts one enqueued job.
func IncrementJobsEnqueued() {
	JobsEnqueuedTotal.Inc()
}

// IncrementEmailProcessed counts one handled email.
func IncrementEmailProcessed(status string) {
	EmailsProcessedCount.WithLabelValues(status).Inc()
}

// RecordExtractorCallLatency records one LLM extraction call.
func RecordExtractorCallLatency(status string, duration time.Duration) {
	ExtractorCallLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

// RecordLedgerPostLatency records one ledger API post.
func RecordLedgerPostLatency(status string, duration time.Duration) {
	LedgerPostLatency.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}
