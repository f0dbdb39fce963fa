package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cvparser"

// Metrics holds the worker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	JobsTotal      *prometheus.CounterVec
	JobDuration    prometheus.Histogram
	InFlight       prometheus.Gauge
	StageDuration  *prometheus.HistogramVec
	ExtractedChars prometheus.Histogram
	Redeliveries   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs handled, by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time spent handling one job.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being handled.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each handler stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		ExtractedChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extracted_chars",
			Help:      "Characters of text extracted per document.",
			Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
		}),
		Redeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_redeliveries_total",
			Help:      "Jobs received on a second or later attempt.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.JobsTotal, m.JobDuration, m.InFlight, m.StageDuration, m.ExtractedChars, m.Redeliveries)
	}
	return m
}

func (m *Metrics) ObserveJob(outcome, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(outcome, kind).Inc()
	m.JobDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) ObserveExtracted(chars int) {
	if m == nil {
		return
	}
	m.ExtractedChars.Observe(float64(chars))
}

func (m *Metrics) JobStarted(attempt int) {
	if m == nil {
		return
	}
	m.InFlight.Inc()
	if attempt > 1 {
		m.Redeliveries.Inc()
	}
}

func (m *Metrics) JobFinished() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}
