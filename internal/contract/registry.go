package contract

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

type snapshot struct {
	tools    map[string]ToolSpec
	loadedAt time.Time
}

// Registry resolves tool calls against loaded contracts. Lookups read an
// immutable snapshot; Reload swaps in a new one.
type Registry struct {
	path string
	snap atomic.Pointer[snapshot]
}

// NewRegistry builds a registry from in-memory specs.
func NewRegistry(specs []ToolSpec) (*Registry, error) {
	if err := Validate(specs); err != nil {
		return nil, &ConfigurationError{Path: "<memory>", Err: err}
	}
	r := &Registry{}
	r.snap.Store(newSnapshot(specs))
	return r, nil
}

// LoadRegistry builds a registry from the contract document at path.
func LoadRegistry(path string) (*Registry, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	r := &Registry{path: path}
	r.snap.Store(newSnapshot(doc.Tools))
	return r, nil
}

func newSnapshot(specs []ToolSpec) *snapshot {
	tools := make(map[string]ToolSpec, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		tools[spec.Name] = spec
	}
	return &snapshot{tools: tools, loadedAt: time.Now().UTC()}
}

// Path returns the document the registry was loaded from, if any.
func (r *Registry) Path() string {
	return r.path
}

// LoadedAt reports when the current snapshot was built.
func (r *Registry) LoadedAt() time.Time {
	return r.snap.Load().loadedAt
}

// Reload re-reads the contract document. On failure the current snapshot stays.
func (r *Registry) Reload() error {
	if r.path == "" {
		return fmt.Errorf("registry was not loaded from a file")
	}
	doc, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	r.snap.Store(newSnapshot(doc.Tools))
	return nil
}

// Lookup returns the contract for name.
func (r *Registry) Lookup(name string) (ToolSpec, bool) {
	spec, ok := r.snap.Load().tools[strings.TrimSpace(name)]
	return spec, ok
}

// List returns every contract sorted by name.
func (r *Registry) List() []ToolSpec {
	snap := r.snap.Load()
	out := make([]ToolSpec, 0, len(snap.tools))
	for _, spec := range snap.tools {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve turns a tool call into a concrete bounded query.
//
// The limit comes from params["limit"], then defaults["limit"], then
// DefaultLimit, and must not exceed the contract's max_limit.
func (r *Registry) Resolve(tool string, params map[string]any) (Resolved, error) {
	spec, ok := r.Lookup(tool)
	if !ok {
		return Resolved{}, &UnknownToolError{Tool: strings.TrimSpace(tool)}
	}

	limit, err := resolveLimit(spec, params)
	if err != nil {
		return Resolved{}, err
	}

	query, err := Render(spec, params, limit)
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Tool:          spec.Name,
		Action:        spec.Action,
		Resource:      spec.Resource,
		Query:         query,
		Limit:         limit,
		HasTimeFilter: HasTimeFilter(query, spec.timeColumn(), spec.timeFunction()),
	}, nil
}

func resolveLimit(spec ToolSpec, params map[string]any) (int, error) {
	raw, ok := params["limit"]
	if !ok || raw == nil {
		raw, ok = spec.Defaults["limit"]
	}
	limit := DefaultLimit
	if ok && raw != nil {
		n, err := toLimit(raw)
		if err != nil {
			return 0, &ConstraintViolation{Tool: spec.Name, Param: "limit", Detail: err.Error()}
		}
		limit = n
	}
	if limit > spec.Constraints.MaxLimit {
		return 0, &ConstraintViolation{
			Tool:   spec.Name,
			Param:  "limit",
			Detail: fmt.Sprintf("limit %d exceeds max_limit %d", limit, spec.Constraints.MaxLimit),
		}
	}
	return limit, nil
}
