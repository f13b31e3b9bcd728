package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docingest/internal/domain"
)

// sample sums every series of a counter or histogram family matching labels.
func sample(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue series
				}
			}
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if h := metric.GetHistogram(); h != nil {
				total += float64(h.GetSampleCount())
			}
		}
	}
	return total
}

func TestObserveCompleted(t *testing.T) {
	m := New()

	m.Observe(domain.StageEvent{From: domain.StageSegmented, To: domain.StageValidated, Chunks: 4, Gaps: 2})
	m.Observe(domain.StageEvent{From: domain.StagePersisted, To: domain.StageCompleted, Chunks: 4, Elapsed: time.Second})

	assert.Equal(t, 1.0, sample(t, m, "docingest_pipeline_documents_total", map[string]string{"outcome": "completed"}))
	assert.Equal(t, 2.0, sample(t, m, "docingest_pipeline_coverage_gaps_total", nil))
	assert.Equal(t, 1.0, sample(t, m, "docingest_pipeline_chunks_per_document", nil))
}

func TestObserveFailed(t *testing.T) {
	m := New()

	m.Observe(domain.StageEvent{
		From: domain.StageValidated,
		To:   domain.StageFailed,
		Step: domain.StageEmbedded.Step(),
		Err:  errors.New("boom"),
	})

	assert.Equal(t, 1.0, sample(t, m, "docingest_pipeline_documents_total", map[string]string{"outcome": "failed"}))
	assert.Equal(t, 1.0, sample(t, m, "docingest_pipeline_stage_failures_total", map[string]string{"step": "embedding"}))
	assert.Equal(t, 0.0, sample(t, m, "docingest_pipeline_documents_total", map[string]string{"outcome": "completed"}))
}

func TestObserveIntermediateStagesAreNotOutcomes(t *testing.T) {
	m := New()

	m.Observe(domain.StageEvent{From: domain.StageReceived, To: domain.StageExtracted})
	m.Observe(domain.StageEvent{From: domain.StageEmbedded, To: domain.StagePersisted})

	assert.Equal(t, 0.0, sample(t, m, "docingest_pipeline_documents_total", nil))
	assert.Equal(t, 0.0, sample(t, m, "docingest_pipeline_ingest_duration_seconds", nil))
	assert.Equal(t, 2.0, sample(t, m, "docingest_pipeline_stage_transitions_total", nil))
}
