package run

import (
	"context"
	"regexp"
	"testing"
)

var idPattern = regexp.MustCompile(`^run-[0-9a-f]{12}$`)

func TestNewID_Format(t *testing.T) {
	id := NewID()
	if !idPattern.MatchString(id) {
		t.Fatalf("expected id matching %s, got %q", idPattern, id)
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate run id after %d iterations: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestEnsure_KeepsProvidedID(t *testing.T) {
	if got := Ensure("  run-abc  "); got != "run-abc" {
		t.Fatalf("expected run-abc, got %q", got)
	}
	if got := Ensure(" "); !idPattern.MatchString(got) {
		t.Fatalf("expected generated id, got %q", got)
	}
}

func TestFromContext_RoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), Context{ID: " run-0123456789ab "})
	rc, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected run context in ctx")
	}
	if rc.ID != "run-0123456789ab" {
		t.Fatalf("expected trimmed id, got %q", rc.ID)
	}
	if got := IDFromContext(ctx); got != "run-0123456789ab" {
		t.Fatalf("expected stored id, got %q", got)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no run context")
	}
	if got := IDFromContext(context.Background()); !idPattern.MatchString(got) {
		t.Fatalf("expected generated id, got %q", got)
	}
}
