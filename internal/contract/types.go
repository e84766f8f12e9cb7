package contract

import "strings"

// DefaultLimit applies when neither the caller nor the contract sets a limit.
const DefaultLimit = 50

// DefaultLookback is the relative window used by generated queries.
const DefaultLookback = "24h"

// DefaultTimeColumn is the column that generated queries filter on.
const DefaultTimeColumn = "TimeGenerated"

// DefaultTimeFunction is the relative-time call a time filter must use.
const DefaultTimeFunction = "ago("

// Document is the on-disk contract document.
type Document struct {
	Version int        `json:"version" yaml:"version"`
	Tools   []ToolSpec `json:"tools" yaml:"tools"`
}

// ToolSpec describes one tool: the action it maps to, the backend resource it
// reads and the bounded query it is allowed to run.
type ToolSpec struct {
	Name          string         `json:"name" yaml:"name"`
	Description   string         `json:"description,omitempty" yaml:"description,omitempty"`
	Action        string         `json:"action" yaml:"action"`
	Resource      string         `json:"resource" yaml:"resource"`
	QueryTemplate string         `json:"query_template,omitempty" yaml:"query_template,omitempty"`
	Defaults      map[string]any `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Constraints   Constraints    `json:"constraints" yaml:"constraints"`

	TimeColumn string   `json:"time_column,omitempty" yaml:"time_column,omitempty"`
	// TimeFunction marks a relative-time bound in the rendered query, for
	// example "now()" or "INTERVAL" on SQL backends.
	TimeFunction string `json:"time_function,omitempty" yaml:"time_function,omitempty"`
	Lookback   string   `json:"lookback,omitempty" yaml:"lookback,omitempty"`
	Project    []string `json:"project,omitempty" yaml:"project,omitempty"`
	Where      []Filter `json:"where,omitempty" yaml:"where,omitempty"`
}

// Constraints bound what a caller may request.
type Constraints struct {
	MaxLimit int `json:"max_limit" yaml:"max_limit"`
}

// Filter is one fixed predicate appended to the generated query.
type Filter struct {
	Col   string `json:"col" yaml:"col"`
	Op    string `json:"op" yaml:"op"`
	Value any    `json:"value" yaml:"value"`
}

// Resolved is the outcome of resolving a tool call against its contract.
type Resolved struct {
	Tool          string `json:"tool"`
	Action        string `json:"action"`
	Resource      string `json:"resource"`
	Query         string `json:"query"`
	Limit         int    `json:"limit"`
	HasTimeFilter bool   `json:"has_time_filter"`
}

func (s ToolSpec) timeColumn() string {
	if col := strings.TrimSpace(s.TimeColumn); col != "" {
		return col
	}
	return DefaultTimeColumn
}

func (s ToolSpec) timeFunction() string {
	if fn := strings.TrimSpace(s.TimeFunction); fn != "" {
		return fn
	}
	return DefaultTimeFunction
}

func (s ToolSpec) lookback() string {
	if lb := strings.TrimSpace(s.Lookback); lb != "" {
		return lb
	}
	return DefaultLookback
}
