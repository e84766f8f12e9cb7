package contract

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/f7las/gatekeeper/internal/document"
)

//go:embed schema/contract.schema.json
var contractSchemaJSON []byte

var contractSchema = document.MustCompile("contract.schema.json", contractSchemaJSON)

var validOps = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"in": true, "has": true, "contains": true,
}

// LoadFile reads and validates a contract document (JSON or YAML).
// Every failure is a *ConfigurationError.
func LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, &ConfigurationError{Path: path, Err: err}
	}
	doc, err := Parse(path, data)
	if err != nil {
		return Document{}, &ConfigurationError{Path: path, Err: err}
	}
	return doc, nil
}

// Parse decodes and validates contract document bytes. path only selects the
// decoder by extension.
func Parse(path string, data []byte) (Document, error) {
	var doc Document
	if err := document.Load(path, data, contractSchema, &doc); err != nil {
		return Document{}, err
	}
	if err := Validate(doc.Tools); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks the invariants the schema cannot express.
func Validate(specs []ToolSpec) error {
	var errs []error
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("tools[%d]: name is required", i))
			continue
		case seen[name]:
			errs = append(errs, fmt.Errorf("tools[%d]: duplicate tool name %q", i, name))
		}
		seen[name] = true

		if strings.TrimSpace(spec.Action) == "" {
			errs = append(errs, fmt.Errorf("tool %s: action is required", name))
		}
		if strings.TrimSpace(spec.Resource) == "" {
			errs = append(errs, fmt.Errorf("tool %s: resource is required", name))
		}
		if spec.Constraints.MaxLimit < 1 {
			errs = append(errs, fmt.Errorf("tool %s: constraints.max_limit must be at least 1", name))
		}
		if raw, ok := spec.Defaults["limit"]; ok {
			limit, err := toLimit(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("tool %s: defaults.limit: %w", name, err))
			} else if spec.Constraints.MaxLimit >= 1 && limit > spec.Constraints.MaxLimit {
				errs = append(errs, fmt.Errorf("tool %s: defaults.limit %d exceeds max_limit %d", name, limit, spec.Constraints.MaxLimit))
			}
		}
		for j, f := range spec.Where {
			if !validOps[f.Op] {
				errs = append(errs, fmt.Errorf("tool %s: where[%d]: unsupported operator %q", name, j, f.Op))
			}
		}
		if _, err := parseTemplate(spec.template()); err != nil {
			errs = append(errs, fmt.Errorf("tool %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
