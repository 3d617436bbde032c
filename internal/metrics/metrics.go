// Package metrics exposes Prometheus collectors for analysis runs.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repowiki/internal/llm"
)

const namespace = "repowiki"

type Metrics struct {
	registry *prometheus.Registry

	StageDuration    *prometheus.HistogramVec
	Generations      *prometheus.CounterVec
	GenerationTime   *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	FallbackEvidence prometheus.Counter
	Citations        prometheus.Counter
	Runs             *prometheus.CounterVec
	SchemaDeviations *prometheus.CounterVec
}

// New registers every collector on a private registry along with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{.05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		Generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Structured generation calls by model and outcome.",
		}, []string{"model", "status"}),
		GenerationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Latency of structured generation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"model"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Analysis cache lookups by layer and result.",
		}, []string{"layer", "result"}),
		FallbackEvidence: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_evidence_total",
			Help:      "Subsystems whose evidence came from the deterministic fallback.",
		}),
		Citations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_total",
			Help:      "Validated citations written into wiki pages.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		SchemaDeviations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_schema_deviations_total",
			Help:      "Decoded model outputs that did not match the requested schema.",
		}, []string{"stage"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.StageDuration,
		m.Generations,
		m.GenerationTime,
		m.CacheLookups,
		m.FallbackEvidence,
		m.Citations,
		m.Runs,
		m.SchemaDeviations,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status(err)).Observe(d.Seconds())
}

func (m *Metrics) ObserveCache(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(layer, result).Inc()
}

func (m *Metrics) ObserveRun(status string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
}

func (m *Metrics) AddFallback() {
	if m == nil {
		return
	}
	m.FallbackEvidence.Inc()
}

func (m *Metrics) AddCitations(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Citations.Add(float64(n))
}

func (m *Metrics) AddSchemaDeviation(stage string) {
	if m == nil {
		return
	}
	m.SchemaDeviations.WithLabelValues(stage).Inc()
}

// Instrument returns a middleware that counts and times generation calls.
func (m *Metrics) Instrument() llm.Middleware {
	return func(next llm.Generator) llm.Generator {
		if m == nil {
			return next
		}
		return &instrumented{next: next, m: m}
	}
}

type instrumented struct {
	next llm.Generator
	m    *Metrics
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) GenerateJSON(ctx context.Context, prompt string, schema *llm.Schema) (json.RawMessage, error) {
	start := time.Now()
	resp, err := i.next.GenerateJSON(ctx, prompt, schema)
	model := i.next.Name()
	i.m.GenerationTime.WithLabelValues(model).Observe(time.Since(start).Seconds())
	i.m.Generations.WithLabelValues(model, status(err)).Inc()
	return resp, err
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
