package contract

import (
	"encoding/json"
	"testing"
)

func TestHasTimeFilter(t *testing.T) {
	tests := []struct {
		query  string
		column string
		fn     string
		want   bool
	}{
		{"T | where TimeGenerated > ago(1h)", "", "", true},
		{"T | where TimeGenerated > datetime(2026-01-01)", "", "", false},
		{"T | take 10", "", "", false},
		{"T | where Timestamp > ago(7d)", "Timestamp", "", true},
		{"T | where Timestamp > ago(7d)", "", "", false},
		{"SELECT * FROM pods WHERE seen_at > now() - INTERVAL '1 hour'", "seen_at", "now()", true},
		{"SELECT * FROM pods WHERE seen_at > now() - INTERVAL '1 hour'", "seen_at", "", false},
		{"SELECT * FROM pods WHERE seen_at > '2026-01-01'", "seen_at", "now()", false},
	}
	for _, tt := range tests {
		if got := HasTimeFilter(tt.query, tt.column, tt.fn); got != tt.want {
			t.Fatalf("HasTimeFilter(%q, %q, %q): expected %v, got %v", tt.query, tt.column, tt.fn, tt.want, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"x", `"x"`},
		{`a"b`, `"a\"b"`},
		{true, "true"},
		{false, "false"},
		{nil, "null"},
		{3, "3"},
		{2.5, "2.5"},
		{json.Number("7"), "7"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Fatalf("formatValue(%v): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestRender_RejectsBadLookback(t *testing.T) {
	spec := ToolSpec{Name: "t", Action: "a", Resource: "R", Constraints: Constraints{MaxLimit: 5}}

	if _, err := Render(spec, map[string]any{"lookback": "forever"}, 5); err == nil {
		t.Fatalf("expected invalid lookback to fail")
	}

	query, err := Render(spec, map[string]any{"lookback": "7d"}, 5)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if query != "R\n| where TimeGenerated > ago(7d)\n| take 5" {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestRender_IsPure(t *testing.T) {
	spec := sampleSpecs()[0]
	params := map[string]any{"limit": 10}

	first, err := Render(spec, params, 10)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	second, err := Render(spec, params, 10)
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical renders, got %q and %q", first, second)
	}
	if len(params) != 1 {
		t.Fatalf("expected params to be left untouched, got %v", params)
	}
}

func TestParameters(t *testing.T) {
	spec := ToolSpec{
		Name:          "delete_pod",
		QueryTemplate: "delete pod {{pod}} -n {{namespace}} --max {{limit}} {{pod}}",
	}
	got := Parameters(spec)
	if len(got) != 2 || got[0] != "pod" || got[1] != "namespace" {
		t.Fatalf("expected [pod namespace], got %v", got)
	}

	generated := Parameters(ToolSpec{Name: "signin_logs", Resource: "SigninLogs"})
	if len(generated) != 1 || generated[0] != "lookback" {
		t.Fatalf("expected [lookback] for generated template, got %v", generated)
	}
}
