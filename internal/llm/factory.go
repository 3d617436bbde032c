package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

type Options struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	RPS         float64
	Burst       int
	Logger      *slog.Logger
}

// NewGenerator builds the configured provider wrapped in logging, retry,
// rate limiting and a per-call timeout (outermost to innermost).
func NewGenerator(ctx context.Context, opts Options) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	var base Generator
	switch provider {
	case "gemini":
		g, err := NewGeminiGenerator(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, err
		}
		base = g
	case "openai":
		base = NewOpenAIGenerator(opts.APIKey, opts.Model, opts.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", opts.Provider)
	}

	return Chain(base,
		Logging(opts.Logger),
		Retry(opts.MaxAttempts, time.Second),
		RateLimit(opts.RPS, opts.Burst),
		Timeout(opts.Timeout),
	), nil
}
