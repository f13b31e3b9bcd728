package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docingest/internal/domain"
)

// Metrics holds the ingestion collectors. Each instance registers into its
// own registry so tests never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	documentsTotal   *prometheus.CounterVec
	stageFailures    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	chunksPerDoc     prometheus.Histogram
	gapsTotal        prometheus.Counter
	ingestDuration   prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		documentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Total ingestion runs, by outcome (completed or failed).",
		}, []string{"outcome"}),
		stageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Failed runs, by the step that failed.",
		}, []string{"step"}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "stage_transitions_total",
			Help:      "Stage transitions, by target stage.",
		}, []string{"to"}),
		chunksPerDoc: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "chunks_per_document",
			Help:      "Chunks produced per persisted document.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		gapsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "coverage_gaps_total",
			Help:      "Coverage gaps reported by chunk validation.",
		}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docingest",
			Subsystem: "pipeline",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a run from receipt to a terminal stage.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Observe is a stage observer for the ingest use case.
func (m *Metrics) Observe(ev domain.StageEvent) {
	m.transitionsTotal.WithLabelValues(string(ev.To)).Inc()

	switch ev.To {
	case domain.StageValidated:
		m.gapsTotal.Add(float64(ev.Gaps))
	case domain.StageCompleted:
		m.chunksPerDoc.Observe(float64(ev.Chunks))
	case domain.StageFailed:
		m.stageFailures.WithLabelValues(ev.Step).Inc()
	}

	if ev.To.Terminal() {
		m.documentsTotal.WithLabelValues(string(ev.To)).Inc()
		m.ingestDuration.Observe(ev.Elapsed.Seconds())
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
