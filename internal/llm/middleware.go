package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Middleware decorates a Generator.
type Middleware func(next Generator) Generator

// Chain applies middlewares so the first one is outermost.
func Chain(g Generator, mws ...Middleware) Generator {
	for i := len(mws) - 1; i >= 0; i-- {
		g = mws[i](g)
	}
	return g
}

// Retry retries transport-level failures with exponential backoff starting at
// baseDelay. Fatal errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return func(next Generator) Generator {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Generator
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (json.RawMessage, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.base
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.max-1)), ctx)

	var resp json.RawMessage
	attempts, stopped := 0, false
	err := backoff.Retry(func() error {
		attempts++
		out, err := r.next.GenerateJSON(ctx, prompt, schema)
		if err == nil {
			resp = out
			return nil
		}
		if IsFatal(err) || ctx.Err() != nil {
			stopped = true
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	switch {
	case err == nil:
		return resp, nil
	case stopped, ctx.Err() != nil:
		return nil, err
	default:
		return nil, fmt.Errorf("after %d attempts: %w", attempts, err)
	}
}

// Timeout bounds each individual call. A timeout surfaces as an ordinary error.
func Timeout(d time.Duration) Middleware {
	return func(next Generator) Generator {
		if d <= 0 {
			return next
		}
		return &timeouting{next: next, d: d}
	}
}

type timeouting struct {
	next Generator
	d    time.Duration
}

func (t *timeouting) Name() string { return t.next.Name() }

func (t *timeouting) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.GenerateJSON(ctx, prompt, schema)
}

// RateLimit caps request rate across all callers sharing the returned Generator.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Generator) Generator {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		return &limited{next: next, lim: rate.NewLimiter(rate.Limit(rps), burst)}
	}
}

type limited struct {
	next Generator
	lim  *rate.Limiter
}

func (l *limited) Name() string { return l.next.Name() }

func (l *limited) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (json.RawMessage, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.GenerateJSON(ctx, prompt, schema)
}

// Logging records request size, latency and outcome per call.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Generator) Generator {
		return &logging{next: next, logger: logger}
	}
}

type logging struct {
	next   Generator
	logger *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }

func (l *logging) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (json.RawMessage, error) {
	start := time.Now()
	resp, err := l.next.GenerateJSON(ctx, prompt, schema)
	attrs := []any{
		"model", l.next.Name(),
		"prompt_bytes", len(prompt),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		l.logger.WarnContext(ctx, "generation failed", append(attrs, "error", err)...)
		return nil, err
	}
	l.logger.DebugContext(ctx, "generation complete", append(attrs, "response_bytes", len(resp))...)
	return resp, nil
}
