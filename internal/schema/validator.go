// Package schema validates exported journey documents against an embedded
// JSON schema.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/dataproduct/journeys/pkg/api"
)

//go:embed document.schema.yaml
var documentSchema []byte

const documentSchemaURL = "document.schema.json"

// Validator handles JSON schema validation of journey documents.
type Validator struct {
	document *jsonschema.Schema
}

// NewValidator compiles the embedded document schema.
func NewValidator() (*Validator, error) {
	s, err := compile(documentSchemaURL, documentSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to load document schema: %w", err)
	}
	return &Validator{document: s}, nil
}

// ValidateDocument validates an exported document.
func (v *Validator) ValidateDocument(doc api.Document) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	return v.validateJSON(b)
}

// Decode parses a JSON or YAML document, validates it and returns it.
func (v *Validator) Decode(data []byte) (api.Document, error) {
	b, err := toJSON(data)
	if err != nil {
		return api.Document{}, err
	}
	if err := v.validateJSON(b); err != nil {
		return api.Document{}, err
	}
	var doc api.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return api.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func (v *Validator) validateJSON(b []byte) error {
	var data any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	return v.document.Validate(data)
}

// compile loads and compiles a schema written in JSON or YAML.
func compile(url string, data []byte) (*jsonschema.Schema, error) {
	b, err := toJSON(data)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return s, nil
}

// toJSON converts YAML (a superset of JSON) to JSON.
func toJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}
	return b, nil
}
