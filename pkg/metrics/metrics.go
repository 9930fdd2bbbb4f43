// Package metrics provides Prometheus instrumentation for shopsync.
//
// # Overview
//
// All vectors are registered on the default registry through promauto, so the
// CLI only has to mount promhttp.Handler to expose them.
//
// # Basic Usage
//
//	// Count an emitted record
//	metrics.RecordsEmitted.WithLabelValues("orders").Inc()
//
//	// Time a stream sync
//	timer := metrics.NewTimer()
//	err := stream.Sync(ctx, prior, emit)
//	metrics.StreamSyncDuration.WithLabelValues("orders", metrics.Outcome(err)).Observe(timer.Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsEmitted counts normalized records handed to the caller.
	// Labels: stream
	RecordsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_records_emitted_total",
			Help: "Total number of normalized records emitted",
		},
		[]string{"stream"},
	)

	// RecordsSkipped counts records dropped before emission.
	// Labels: stream, reason (malformed/older_than_state)
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_records_skipped_total",
			Help: "Total number of records dropped before emission",
		},
		[]string{"stream", "reason"},
	)

	// HTTPRequests counts upstream calls by API class and response status.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_http_requests_total",
			Help: "Total number of upstream API requests",
		},
		[]string{"api_class", "status"},
	)

	// RateLimitWait tracks time spent waiting on a rate-limit budget.
	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsync_rate_limit_wait_seconds",
			Help:    "Time spent waiting for a rate-limit budget",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"api_class"},
	)

	// BulkJobs counts finished bulk operations by terminal status.
	BulkJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_bulk_jobs_total",
			Help: "Total number of bulk operations by terminal status",
		},
		[]string{"stream", "status"},
	)

	// BulkJobDuration tracks submit-to-terminal time of bulk operations.
	BulkJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsync_bulk_job_duration_seconds",
			Help:    "Bulk operation duration from submission to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800, 3600},
		},
		[]string{"stream"},
	)

	// StreamSyncDuration tracks the duration of whole stream syncs.
	// Labels: stream, outcome (success/failure)
	StreamSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsync_stream_sync_duration_seconds",
			Help:    "Duration of a stream sync",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		},
		[]string{"stream", "outcome"},
	)
)

// Outcome maps an error to the outcome label value.
func Outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Seconds returns the elapsed time in seconds, the unit Prometheus histograms use.
func (t *Timer) Seconds() float64 {
	return t.Elapsed().Seconds()
}
