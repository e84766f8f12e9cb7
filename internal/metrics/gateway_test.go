package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func boolPtr(v bool) *bool { return &v }

func TestRecorder_AggregatesOutcomes(t *testing.T) {
	workspace := t.TempDir()
	m := NewRecorder(workspace)

	events := []Event{
		{Decision: "ALLOW", Executed: true, Rowcount: 500, Latency: 20 * time.Millisecond},
		{Decision: "ALLOW", Executed: true, Latency: 5 * time.Second, Err: fmt.Errorf("query: %w", context.DeadlineExceeded)},
		{Decision: "DENY"},
		{ResolveFailed: true},
		{Decision: "HITL", Approved: boolPtr(false)},
		{Decision: "HITL", Approved: boolPtr(true), Executed: true, Rowcount: 3, Latency: time.Millisecond},
	}
	var snap Snapshot
	for _, ev := range events {
		var err error
		snap, err = m.Record(ev)
		if err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}

	if snap.Requests.Total != 6 {
		t.Fatalf("expected total 6, got %d", snap.Requests.Total)
	}
	if snap.Requests.Allowed != 2 {
		t.Fatalf("expected allowed 2, got %d", snap.Requests.Allowed)
	}
	if snap.Requests.Denied != 3 {
		t.Fatalf("expected denied 3, got %d", snap.Requests.Denied)
	}
	if snap.Requests.ResolveFailures != 1 {
		t.Fatalf("expected resolve failures 1, got %d", snap.Requests.ResolveFailures)
	}
	if snap.Requests.HITL != 2 || snap.Requests.Approved != 1 || snap.Requests.Rejected != 1 {
		t.Fatalf("unexpected hitl stats %+v", snap.Requests)
	}
	if snap.Execution.Total != 3 {
		t.Fatalf("expected 3 executions, got %d", snap.Execution.Total)
	}
	if snap.Execution.Errors != 1 || snap.Execution.Timeouts != 1 {
		t.Fatalf("expected 1 error and 1 timeout, got %+v", snap.Execution)
	}
	if snap.Execution.Rows != 503 {
		t.Fatalf("expected 503 rows, got %d", snap.Execution.Rows)
	}
	if snap.Execution.MaxLatencyMs != 5000 {
		t.Fatalf("expected max latency 5000, got %d", snap.Execution.MaxLatencyMs)
	}

	persisted, err := ReadSnapshot(workspace)
	if err != nil {
		t.Fatalf("ReadSnapshot error: %v", err)
	}
	if persisted.Requests.Total != 6 {
		t.Fatalf("expected persisted total 6, got %d", persisted.Requests.Total)
	}
}

func TestReadSnapshot_MissingFile(t *testing.T) {
	snap, err := ReadSnapshot(t.TempDir())
	if err != nil {
		t.Fatalf("ReadSnapshot error: %v", err)
	}
	if snap.HasData() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var m *Recorder
	if _, err := m.Record(Event{Decision: "ALLOW"}); err != nil {
		t.Fatalf("expected nil recorder to be a no-op, got %v", err)
	}
	if m.Snapshot().HasData() {
		t.Fatal("expected empty snapshot")
	}
}

func TestIsTimeoutError(t *testing.T) {
	if !isTimeoutError(context.DeadlineExceeded) {
		t.Fatal("expected deadline exceeded to be a timeout")
	}
	if !isTimeoutError(errors.New("i/o timeout")) {
		t.Fatal("expected i/o timeout to be a timeout")
	}
	if isTimeoutError(errors.New("syntax error")) {
		t.Fatal("expected syntax error not to be a timeout")
	}
}
