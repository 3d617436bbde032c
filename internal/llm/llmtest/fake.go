// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"sync"

	"repowiki/internal/llm"
)

// Call is one recorded GenerateJSON invocation.
type Call struct {
	Prompt string
	Schema *llm.Schema
}

// Fake answers every call through Respond. A string result is returned verbatim,
// anything else is marshaled to JSON.
type Fake struct {
	Respond func(prompt string, schema *llm.Schema) (any, error)

	mu    sync.Mutex
	calls []Call
}

// Static returns a Fake that always answers v.
func Static(v any) *Fake {
	return &Fake{Respond: func(string, *llm.Schema) (any, error) { return v, nil }}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) GenerateJSON(ctx context.Context, prompt string, schema *llm.Schema) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Prompt: prompt, Schema: schema})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := f.Respond(prompt, schema)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		return json.RawMessage(s), nil
	}
	return json.Marshal(v)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}
