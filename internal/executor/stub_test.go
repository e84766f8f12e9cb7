package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStub_ReturnsFixtureCopy(t *testing.T) {
	stub := NewStub(map[string]Fixture{
		"ec2_instances": {
			Columns: []string{"InstanceId", "State"},
			Rows:    [][]any{{"i-0abc", "running"}},
		},
	})

	table, err := stub.Execute(context.Background(), Request{Resource: "ec2_instances"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	table.Rows[0].Cells()[0] = "mutated"

	again, err := stub.Execute(context.Background(), Request{Resource: "ec2_instances"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if again.Rows[0].Cells()[0] != "i-0abc" {
		t.Fatalf("expected fixture to be unaffected, got %v", again.Rows[0].Cells()[0])
	}
}

func TestStub_UnknownResourceIsEmpty(t *testing.T) {
	table, err := NewStub(nil).Execute(context.Background(), Request{Resource: "nothing"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(table.Rows) != 0 || len(table.Columns) != 0 {
		t.Fatalf("expected empty table, got %+v", table)
	}
}

func TestStub_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStub(nil).Execute(ctx, Request{Resource: "x"}); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestLoadStub_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	content := `
SigninLogs:
  columns: [TimeGenerated, UserPrincipalName, ResultType]
  rows:
    - ["2026-01-01T00:00:00Z", "alice@example.com", 0]
    - ["2026-01-01T00:05:00Z", "bob@example.com", 50126]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	stub, err := LoadStub(path)
	if err != nil {
		t.Fatalf("LoadStub error: %v", err)
	}
	if got := stub.Resources(); len(got) != 1 || got[0] != "SigninLogs" {
		t.Fatalf("unexpected resources %v", got)
	}
	table, err := stub.Execute(context.Background(), Request{Resource: "SigninLogs"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(table.Rows) != 2 || len(table.Columns) != 3 {
		t.Fatalf("unexpected table shape %+v", table)
	}
}

func TestLoadStub_RejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.json")
	if err := os.WriteFile(path, []byte(`{"T": {"columns": ["a", "b"], "rows": [["only-one"]]}}`), 0644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if _, err := LoadStub(path); err == nil {
		t.Fatal("expected ragged row error")
	}
}
