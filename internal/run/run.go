// Package run carries the per-request correlation id through the pipeline.
package run

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const idPrefix = "run-"

type contextKey struct{}

// Context identifies one top-level request. It owns no other state.
type Context struct {
	ID string
}

// NewID returns a fresh run id of the form run-<12 hex digits>.
func NewID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + hex[:12]
}

// New returns a Context with a freshly generated id.
func New() Context {
	return Context{ID: NewID()}
}

// Ensure returns id trimmed, or a fresh id when id is blank.
func Ensure(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewID()
	}
	return id
}

// WithContext stores rc in ctx.
func WithContext(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// FromContext reads the run context stored by WithContext.
func FromContext(ctx context.Context) (Context, bool) {
	if ctx == nil {
		return Context{}, false
	}
	rc, ok := ctx.Value(contextKey{}).(Context)
	if !ok {
		return Context{}, false
	}
	rc.ID = strings.TrimSpace(rc.ID)
	return rc, rc.ID != ""
}

// IDFromContext returns the stored run id, or a fresh one if none is stored.
func IDFromContext(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok {
		return rc.ID
	}
	return NewID()
}
