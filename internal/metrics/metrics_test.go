package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repowiki/internal/llm"
	"repowiki/internal/llm/llmtest"
)

func TestInstrument_CountsOutcomes(t *testing.T) {
	m := New()
	fail := true
	fake := &llmtest.Fake{Respond: func(string, *llm.Schema) (any, error) {
		if fail {
			fail = false
			return nil, errors.New("boom")
		}
		return map[string]any{"ok": true}, nil
	}}
	gen := llm.Chain(fake, m.Instrument())

	_, err := gen.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	_, err = gen.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("fake", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("fake", "ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GenerationTime))
}

func TestObservers(t *testing.T) {
	m := New()
	m.ObserveCache("memory", true)
	m.ObserveCache("store", false)
	m.ObserveCache("store", false)
	m.AddFallback()
	m.AddCitations(4)
	m.AddCitations(0)
	m.ObserveRun("ok")
	m.ObserveStage("draft_pages", 2*time.Second, context.Canceled)
	m.AddSchemaDeviation("evidence mapping")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("store", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackEvidence))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Citations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaDeviations.WithLabelValues("evidence mapping")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCache("memory", true)
		m.AddFallback()
		m.AddCitations(3)
		m.ObserveRun("ok")
		m.ObserveStage("s", time.Second, nil)
		m.AddSchemaDeviation("s")
	})
	fake := llmtest.Static(map[string]any{})
	assert.Same(t, llm.Generator(fake), m.Instrument()(fake))
}

func TestHandler(t *testing.T) {
	m := New()
	m.AddCitations(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "repowiki_citations_total 2"))
}
