package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaURL names the in-memory resource; it is never fetched.
const schemaURL = "file:///llm-output-schema.json"

var (
	compiledMu sync.Mutex
	compiled   = make(map[string]*jsonschema.Schema)
)

// Conform reports whether raw model output matches schema. Stage validators
// repair most deviations (over-long arrays, out-of-range scores), so callers
// treat a mismatch as a diagnostic rather than a failure.
func Conform(raw json.RawMessage, schema *Schema) error {
	if schema == nil {
		return nil
	}
	compiledSchema, err := compile(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	data, err := jsonValue(raw)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return compiledSchema.Validate(v)
}

func compile(schema *Schema) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(doc)

	compiledMu.Lock()
	defer compiledMu.Unlock()
	if s, ok := compiled[key]; ok {
		return s, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	s, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, err
	}
	compiled[key] = s
	return s, nil
}
