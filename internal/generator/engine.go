// Package generator holds the pipeline stages that talk to the generation
// backend (signal selection, subsystem extraction, evidence mapping, page
// drafting) together with the pure validators and the deterministic scorer
// that gate their output.
package generator

import (
	"context"
	"errors"
	"log/slog"

	"repowiki/internal/llm"
	"repowiki/internal/wiki"
)

const (
	DefaultMaxTreePaths   = 1500
	DefaultMaxSignalPaths = 40
	DefaultEvidenceFiles  = 8
)

type Options struct {
	// MaxTreePaths caps how many filtered paths are shown to signal selection.
	MaxTreePaths int
	// MaxSignalPaths caps how many signal paths are kept.
	MaxSignalPaths int
	// EvidenceFiles is the scorer's maxFiles.
	EvidenceFiles int
}

func (o Options) withDefaults() Options {
	if o.MaxTreePaths <= 0 {
		o.MaxTreePaths = DefaultMaxTreePaths
	}
	if o.MaxSignalPaths <= 0 {
		o.MaxSignalPaths = DefaultMaxSignalPaths
	}
	if o.EvidenceFiles <= 0 {
		o.EvidenceFiles = DefaultEvidenceFiles
	}
	return o
}

// Engine runs the generation-backed stages. It keeps no per-run state and is
// safe for concurrent use.
type Engine struct {
	gen    llm.Generator
	opts   Options
	logger *slog.Logger
}

func NewEngine(gen llm.Generator, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{gen: gen, opts: opts.withDefaults(), logger: logger}
}

func (e *Engine) Options() Options { return e.opts }

// generate calls the backend and decodes into T, mapping failures onto the
// error taxonomy.
func generate[T any](ctx context.Context, e *Engine, stage, prompt string, schema *llm.Schema, details ...string) (T, error) {
	var zero T
	raw, err := e.gen.GenerateJSON(ctx, prompt, schema)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return zero, err
		}
		return zero, wiki.Wrap(wiki.CodeGenerationFailed, err, stage+" generation failed", details...)
	}
	out, err := llm.Decode[T](raw)
	if err != nil {
		e.logger.DebugContext(ctx, "undecodable model output", "stage", stage, "output", truncate(string(raw), 500))
		return zero, wiki.Wrap(wiki.CodeInvalidGenerationOutput, err, stage+" output is not valid JSON", details...)
	}
	if err := llm.Conform(raw, schema); err != nil {
		e.logger.DebugContext(ctx, "model output deviates from schema", "stage", stage, "error", err)
		if fn, ok := ctx.Value(deviationKey{}).(SchemaDeviationFunc); ok {
			fn(stage, err)
		}
	}
	return out, nil
}

// SchemaDeviationFunc is told about model output that decoded but does not
// match the requested schema. Validators still repair or reject the output.
type SchemaDeviationFunc func(stage string, err error)

type deviationKey struct{}

// WithSchemaDeviation returns a context whose generation calls report schema
// deviations to fn.
func WithSchemaDeviation(ctx context.Context, fn SchemaDeviationFunc) context.Context {
	return context.WithValue(ctx, deviationKey{}, fn)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
