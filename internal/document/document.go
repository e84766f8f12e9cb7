// Package document decodes JSON and YAML configuration documents into a
// JSON-compatible tree and validates them against embedded JSON Schemas.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Schema is a compiled JSON Schema.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// Compile compiles raw as a JSON Schema registered under name.
func Compile(name string, raw []byte) (*Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: sch}, nil
}

// MustCompile is Compile for embedded schemas known at build time.
func MustCompile(name string, raw []byte) *Schema {
	s, err := Compile(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks a decoded tree against the schema.
func (s *Schema) Validate(tree any) error {
	if err := s.schema.Validate(tree); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// IsYAML reports whether path has a YAML extension.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Decode turns JSON or YAML bytes into a JSON-compatible tree
// (map[string]any, []any, float64, string, bool, nil).
func Decode(path string, data []byte) (any, error) {
	if IsYAML(path) {
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		data = encoded
	}

	var tree any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return tree, nil
}

// Bind re-encodes a validated tree into out.
func Bind(tree any, out any) error {
	encoded, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	return dec.Decode(out)
}

// Load decodes data, validates it against schema and binds it into out.
func Load(path string, data []byte, schema *Schema, out any) error {
	tree, err := Decode(path, data)
	if err != nil {
		return err
	}
	if schema != nil {
		if err := schema.Validate(tree); err != nil {
			return err
		}
	}
	return Bind(tree, out)
}
