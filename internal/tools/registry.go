// Package tools exposes gateway-guarded tool contracts as eino tools so an
// agent runtime can bind them directly.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ErrToolNotFound is returned by Execute for a name nothing is registered under.
var ErrToolNotFound = errors.New("tool not found")

// Registry manages tools by name
type Registry struct {
	mu    sync.RWMutex
	tools map[string]tool.InvokableTool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]tool.InvokableTool)}
}

// Register adds a tool to the registry
func (r *Registry) Register(t tool.InvokableTool) error {
	info, err := t.Info(context.Background())
	if err != nil {
		return err
	}
	if info == nil || info.Name == "" {
		return fmt.Errorf("tool info missing name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[info.Name]; exists {
		return fmt.Errorf("tool already registered: %s", info.Name)
	}
	r.tools[info.Name] = t
	return nil
}

// Replace swaps the whole tool set. The new set is built aside and installed
// only when every tool registers, so a failed replace leaves the old set.
func (r *Registry) Replace(ts []tool.InvokableTool) error {
	next := make(map[string]tool.InvokableTool, len(ts))
	for _, t := range ts {
		info, err := t.Info(context.Background())
		if err != nil {
			return err
		}
		if info == nil || info.Name == "" {
			return fmt.Errorf("tool info missing name")
		}
		if _, exists := next[info.Name]; exists {
			return fmt.Errorf("tool already registered: %s", info.Name)
		}
		next[info.Name] = t
	}

	r.mu.Lock()
	r.tools = next
	r.mu.Unlock()
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (tool.InvokableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	return t, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos returns the tool descriptions in name order, ready to bind to a chat
// model.
func (r *Registry) Infos(ctx context.Context) ([]*schema.ToolInfo, error) {
	names := r.Names()
	infos := make([]*schema.ToolInfo, 0, len(names))
	for _, name := range names {
		t, _ := r.Get(name)
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Execute runs a registered tool with JSON arguments.
func (r *Registry) Execute(ctx context.Context, name, argsJSON string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.InvokableRun(ctx, argsJSON)
}
