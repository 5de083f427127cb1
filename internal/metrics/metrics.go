package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	JobsEnqueued  prometheus.Counter
	JobsProcessed *prometheus.CounterVec
	SaveConflicts prometheus.Counter
	LeasesReaped  prometheus.Counter
	JobDuration   prometheus.Histogram
	QueueDepth    prometheus.Gauge
}

// Job outcome labels for JobsProcessed.
const (
	OutcomeTransitioned = "transitioned"
	OutcomeNoop         = "noop"
	OutcomeDead         = "dead"
	OutcomeRetried      = "retried"
)

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		JobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progression_jobs_enqueued_total",
			Help: "Total number of progress jobs enqueued",
		}),
		JobsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progression_jobs_processed_total",
				Help: "Total number of progress jobs processed, by outcome",
			},
			[]string{"outcome"},
		),
		SaveConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progression_save_conflicts_total",
			Help: "Total number of optimistic-concurrency conflicts absorbed",
		}),
		LeasesReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "progression_leases_reaped_total",
			Help: "Total number of expired job leases returned to the queue",
		}),
		JobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "progression_job_duration_seconds",
			Help:    "Progress job processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "progression_queue_depth",
			Help: "Current number of jobs waiting in the queue",
		}),
	}
}
