// Package metrics provides internal prometheus instrumentation for the
// client. This package is internal and should not be imported by external
// projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Collector tracks submission, progress, and artifact fetch metrics.
// A nil *Collector is valid and records nothing, so call sites never need a
// guard.
type Collector struct {
	submissionsTotal   *prometheus.CounterVec
	jobsInFlight       prometheus.Gauge
	eventsTotal        *prometheus.CounterVec
	fetchesTotal       *prometheus.CounterVec
	fetchDuration      prometheus.Histogram
	fetchBytesTotal    prometheus.Counter
	cancellationsTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a Collector and registers its metrics with reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry, or a fresh
// registry in tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{logger: logger.With(zap.String("component", "metrics"))}

	c.submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of graph submissions",
		},
		[]string{"status"},
	)
	c.jobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Number of jobs currently awaiting a terminal state",
	})
	c.eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_events_total",
			Help:      "Total number of progress events consumed",
		},
		[]string{"type"},
	)
	c.fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_fetches_total",
			Help:      "Total number of artifact fetch requests",
		},
		[]string{"status"},
	)
	c.fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "artifact_fetch_duration_seconds",
		Help:      "Artifact fetch duration in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	c.fetchBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_bytes_total",
		Help:      "Total artifact payload bytes fetched",
	})
	c.cancellationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cancellations_total",
		Help:      "Total number of cancel requests issued",
	})

	reg.MustRegister(
		c.submissionsTotal,
		c.jobsInFlight,
		c.eventsTotal,
		c.fetchesTotal,
		c.fetchDuration,
		c.fetchBytesTotal,
		c.cancellationsTotal,
	)
	return c
}

// Submission records one submission attempt with its outcome.
func (c *Collector) Submission(status string) {
	if c == nil {
		return
	}
	c.submissionsTotal.WithLabelValues(status).Inc()
}

// JobStarted marks a job entering flight.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.jobsInFlight.Inc()
}

// JobFinished marks a job leaving flight.
func (c *Collector) JobFinished() {
	if c == nil {
		return
	}
	c.jobsInFlight.Dec()
}

// Event records one consumed progress event.
func (c *Collector) Event(eventType string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(eventType).Inc()
}

// Fetch records an artifact fetch with outcome, duration, and payload size.
func (c *Collector) Fetch(status string, elapsed time.Duration, bytes int) {
	if c == nil {
		return
	}
	c.fetchesTotal.WithLabelValues(status).Inc()
	c.fetchDuration.Observe(elapsed.Seconds())
	if bytes > 0 {
		c.fetchBytesTotal.Add(float64(bytes))
	}
}

// Cancellation records one cancel request.
func (c *Collector) Cancellation() {
	if c == nil {
		return
	}
	c.cancellationsTotal.Inc()
}
