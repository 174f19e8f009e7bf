package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobsInFlight  *prometheus.GaugeVec
	queueLag      *prometheus.HistogramVec
	rateLimitWait prometheus.Histogram
	retries       *prometheus.CounterVec
	breakerState  *prometheus.GaugeVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "renewals",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total handled jobs by queue and outcome.",
		},
		[]string{"service", "queue", "outcome"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "renewals",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Job handling duration in seconds by queue and outcome.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "queue", "outcome"},
	)
	jobsInFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "renewals",
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of in-flight jobs by queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"queue"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "renewals",
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between job publish and handling start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "queue"},
	)
	rateLimitWait := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "renewals",
			Subsystem: "worker",
			Name:      "email_rate_limit_wait_seconds",
			Help:      "Time an email job waited for the send rate limiter.",
			Buckets:   []float64{0, 0.5, 1, 2, 4, 6, 12, 30, 60},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "renewals",
			Subsystem:   "upstream",
			Name:        "retries_total",
			Help:        "Retried outbound calls by operation.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   "renewals",
			Subsystem:   "upstream",
			Name:        "breaker_state",
			Help:        "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"operation"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, queueLag, rateLimitWait, retries, breakerState)

	return &WorkerMetrics{
		registry:      registry,
		jobsTotal:     jobsTotal,
		jobDuration:   jobDuration,
		jobsInFlight:  jobsInFlight,
		queueLag:      queueLag,
		rateLimitWait: rateLimitWait,
		retries:       retries,
		breakerState:  breakerState,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob(queue string) {
	m.jobsInFlight.WithLabelValues(queue).Inc()
}

// FinishJob records one handled delivery. outcome is ack, retry or terminate.
func (m *WorkerMetrics) FinishJob(service, queue, outcome string, duration time.Duration) {
	m.jobsInFlight.WithLabelValues(queue).Dec()
	m.jobsTotal.WithLabelValues(service, queue, outcome).Inc()
	m.jobDuration.WithLabelValues(service, queue, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service, queue string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service, queue).Observe(lag.Seconds())
}

func (m *WorkerMetrics) ObserveRateLimitWait(wait time.Duration) {
	m.rateLimitWait.Observe(wait.Seconds())
}

func (m *WorkerMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

// ObserveBreakerState takes gobreaker state names.
func (m *WorkerMetrics) ObserveBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(operation).Set(value)
}

// Registry exposes the collectors for tests and custom exposition.
func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}
