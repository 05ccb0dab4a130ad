// Package metrics provides Prometheus collectors for the recurring job
// scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result constants for metric labelling.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// JobMetrics bundles Prometheus collectors for job run outcomes.
type JobMetrics struct {
	Registry    *prometheus.Registry
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec
}

// NewJobMetrics constructs and registers all collectors on a dedicated registry.
func NewJobMetrics() *JobMetrics {
	registry := prometheus.NewRegistry()

	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total job executions by type and result.",
		},
		[]string{"job_type", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_run_duration_seconds",
			Help:    "Wall-clock duration of job executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
		[]string{"job_type"},
	)

	registry.MustRegister(runs, duration)

	return &JobMetrics{
		Registry:    registry,
		RunsTotal:   runs,
		RunDuration: duration,
	}
}

// ObserveRun records one finished job execution.
func (m *JobMetrics) ObserveRun(jobType, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(jobType, result).Inc()
	if duration > 0 {
		m.RunDuration.WithLabelValues(jobType).Observe(duration.Seconds())
	}
}

// IncSkipped records a due job that another scheduler instance held the lock for.
func (m *JobMetrics) IncSkipped(jobType string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(jobType, ResultSkipped).Inc()
}
