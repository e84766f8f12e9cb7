package contract

import (
	"errors"
	"fmt"
)

// ErrUnknownTool matches any UnknownToolError via errors.Is.
var ErrUnknownTool = errors.New("unknown tool")

// ErrConstraintViolation matches any ConstraintViolation via errors.Is.
var ErrConstraintViolation = errors.New("constraint violation")

// UnknownToolError is returned when no contract exists for a tool name.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool not registered: %s", e.Tool)
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// ConstraintViolation is returned when a call breaks its contract bounds.
type ConstraintViolation struct {
	Tool   string
	Param  string
	Detail string
}

func (e *ConstraintViolation) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Detail)
	}
	return fmt.Sprintf("tool %s: parameter %s: %s", e.Tool, e.Param, e.Detail)
}

func (e *ConstraintViolation) Is(target error) bool {
	return target == ErrConstraintViolation
}

// ConfigurationError reports an unusable contract document.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("contract %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
