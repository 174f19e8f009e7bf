package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SweepMetrics tracks the daily alert sweep.
type SweepMetrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	duration      prometheus.Histogram
	documents     *prometheus.CounterVec
	lastSuccessTS prometheus.Gauge
}

func NewSweepMetrics(service string) *SweepMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "renewals",
			Subsystem:   "sweep",
			Name:        "runs_total",
			Help:        "Sweep runs by result (completed, failed, skipped_overlap, lease_held).",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "renewals",
			Subsystem:   "sweep",
			Name:        "duration_seconds",
			Help:        "Sweep duration in seconds.",
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
			ConstLabels: constLabels,
		},
	)
	documents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "renewals",
			Subsystem:   "sweep",
			Name:        "documents_total",
			Help:        "Documents seen by the sweep by disposition.",
			ConstLabels: constLabels,
		},
		[]string{"disposition"},
	)
	lastSuccessTS := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "renewals",
			Subsystem:   "sweep",
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last completed sweep.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(runsTotal, duration, documents, lastSuccessTS)

	return &SweepMetrics{
		registry:      registry,
		runsTotal:     runsTotal,
		duration:      duration,
		documents:     documents,
		lastSuccessTS: lastSuccessTS,
	}
}

func (m *SweepMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SweepMetrics) RecordSkipped(result string) {
	m.runsTotal.WithLabelValues(result).Inc()
}

func (m *SweepMetrics) RecordRun(finishedAt time.Time, duration time.Duration, scanned, alerted, skipped, failed int, err error) {
	if err != nil {
		m.runsTotal.WithLabelValues("failed").Inc()
	} else {
		m.runsTotal.WithLabelValues("completed").Inc()
		m.lastSuccessTS.Set(float64(finishedAt.Unix()))
	}
	m.duration.Observe(duration.Seconds())
	m.documents.WithLabelValues("scanned").Add(float64(scanned))
	m.documents.WithLabelValues("alerted").Add(float64(alerted))
	m.documents.WithLabelValues("skipped").Add(float64(skipped))
	m.documents.WithLabelValues("failed").Add(float64(failed))
}
