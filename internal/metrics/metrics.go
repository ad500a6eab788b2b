// Package metrics exposes Prometheus instrumentation for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service
type Metrics struct {
	PipelineRuns  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	AreasReported prometheus.Histogram
}

// New creates and registers all metrics on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelled_needs_pipeline_runs_total",
			Help: "Pipeline runs by outcome category",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modelled_needs_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		AreasReported: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "modelled_needs_areas_reported",
			Help:    "Number of areas returned per successful run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// ObserveStage records how long a stage took
func (m *Metrics) ObserveStage(stage string, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// RecordOutcome counts a finished run; an empty outcome means success
func (m *Metrics) RecordOutcome(outcome string, areas int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
		m.AreasReported.Observe(float64(areas))
	}
	m.PipelineRuns.WithLabelValues(outcome).Inc()
}
