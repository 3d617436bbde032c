// Package llm is the structured-output generation backend used by the pipeline
// stages. Every provider takes a prompt plus an output Schema and returns raw
// JSON; callers decode and then validate it against ground truth.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Generator returns JSON shaped like schema. Output is untrusted.
type Generator interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, schema *Schema) (json.RawMessage, error)
}

// SchemaType mirrors the JSON-schema primitive types providers understand.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeNumber  SchemaType = "number"
	TypeInteger SchemaType = "integer"
	TypeBoolean SchemaType = "boolean"
)

// Schema is a provider-neutral subset of JSON schema.
type Schema struct {
	Type        SchemaType         `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	MinItems    *int64             `json:"minItems,omitempty"`
	MaxItems    *int64             `json:"maxItems,omitempty"`
	Minimum     *float64           `json:"minimum,omitempty"`
	Maximum     *float64           `json:"maximum,omitempty"`
	// PropertyOrdering keeps Gemini output fields in a stable order.
	PropertyOrdering []string `json:"-"`
}

func String(desc string) *Schema  { return &Schema{Type: TypeString, Description: desc} }
func Integer(desc string) *Schema { return &Schema{Type: TypeInteger, Description: desc} }

// Number returns a number schema bounded to [min, max].
func Number(desc string, min, max float64) *Schema {
	return &Schema{Type: TypeNumber, Description: desc, Minimum: &min, Maximum: &max}
}

// Array returns an array schema; a bound <= 0 is left open.
func Array(items *Schema, minItems, maxItems int64) *Schema {
	s := &Schema{Type: TypeArray, Items: items}
	if minItems > 0 {
		s.MinItems = &minItems
	}
	if maxItems > 0 {
		s.MaxItems = &maxItems
	}
	return s
}

// Field is one named object property.
type Field struct {
	Name     string
	Schema   *Schema
	Optional bool
}

// Object builds an object schema with fields in declaration order.
func Object(fields ...Field) *Schema {
	s := &Schema{Type: TypeObject, Properties: make(map[string]*Schema, len(fields))}
	for _, f := range fields {
		s.Properties[f.Name] = f.Schema
		s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
		if !f.Optional {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// Decode unmarshals raw into T. When raw is not valid JSON (models sometimes wrap
// output in fences or prose) it retries on the extracted JSON value.
func Decode[T any](raw json.RawMessage) (T, error) {
	var out T
	data, err := jsonValue(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// jsonValue returns raw when it is valid JSON, else the first JSON value
// embedded in it.
func jsonValue(raw json.RawMessage) ([]byte, error) {
	if json.Valid(raw) {
		return raw, nil
	}
	cleaned := ExtractJSON(string(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("no JSON value in model output")
	}
	return []byte(cleaned), nil
}
