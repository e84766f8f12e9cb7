// Package executor runs rendered queries against backends. The gateway only
// sees column names and rows of opaque cells.
package executor

import (
	"context"
	"fmt"
)

// Row exposes one result row as an ordered sequence of cell values.
type Row interface {
	Cells() []any
}

// Values is a Row backed by a slice.
type Values []any

func (v Values) Cells() []any { return v }

// Table is a raw, unnormalized result.
type Table struct {
	Columns []string
	Rows    []Row
}

// Request is what the gateway hands to a backend.
type Request struct {
	Resource  string
	Query     string
	Workspace string
}

// Executor runs one query. Implementations must honor ctx cancellation.
type Executor interface {
	Name() string
	Execute(ctx context.Context, req Request) (Table, error)
}

// Func adapts a function into an Executor.
type Func func(ctx context.Context, req Request) (Table, error)

func (f Func) Name() string { return "func" }

func (f Func) Execute(ctx context.Context, req Request) (Table, error) {
	return f(ctx, req)
}

// BackendExecutionError wraps any failure reported by a backend.
type BackendExecutionError struct {
	Backend  string
	Resource string
	Err      error
}

func (e *BackendExecutionError) Error() string {
	return fmt.Sprintf("%s backend error on %s: %v", e.Backend, e.Resource, e.Err)
}

func (e *BackendExecutionError) Unwrap() error {
	return e.Err
}
