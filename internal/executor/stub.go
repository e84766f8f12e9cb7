package executor

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/f7las/gatekeeper/internal/document"
)

// Fixture is the canned result for one resource.
type Fixture struct {
	Columns []string `json:"columns" yaml:"columns"`
	Rows    [][]any  `json:"rows" yaml:"rows"`
}

// Stub serves fixtures keyed by resource and never touches the network.
// Unknown resources return an empty table with no columns.
type Stub struct {
	fixtures map[string]Fixture
}

// NewStub creates a stub over fixtures.
func NewStub(fixtures map[string]Fixture) *Stub {
	if fixtures == nil {
		fixtures = map[string]Fixture{}
	}
	return &Stub{fixtures: fixtures}
}

// LoadStub reads a JSON or YAML document mapping resource names to fixtures.
// An empty path yields a stub without fixtures.
func LoadStub(path string) (*Stub, error) {
	if strings.TrimSpace(path) == "" {
		return NewStub(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	fixtures := map[string]Fixture{}
	if err := document.Load(path, data, nil, &fixtures); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	for name, f := range fixtures {
		for i, row := range f.Rows {
			if len(row) != len(f.Columns) {
				return nil, fmt.Errorf("fixture %s row %d: %d cells for %d columns", name, i, len(row), len(f.Columns))
			}
		}
	}
	return NewStub(fixtures), nil
}

func (s *Stub) Name() string { return "stub" }

// Resources lists the resources with fixtures.
func (s *Stub) Resources() []string {
	out := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Stub) Execute(ctx context.Context, req Request) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	f, ok := s.fixtures[req.Resource]
	if !ok {
		return Table{}, nil
	}
	table := Table{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([]Row, 0, len(f.Rows)),
	}
	for _, row := range f.Rows {
		table.Rows = append(table.Rows, Values(append([]any(nil), row...)))
	}
	return table, nil
}
