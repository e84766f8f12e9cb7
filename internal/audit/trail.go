package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Trail stamps records and hands them to a Sink.
//
// Timestamps are UTC, truncated to microseconds and strictly increasing
// across the whole process, which keeps every run's records ordered even on
// sinks that only store microsecond precision.
type Trail struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewTrail creates a trail writing to sink.
func NewTrail(sink Sink, logger *zap.Logger) *Trail {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trail{
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Write appends one record for runID. Sink failures are logged, never returned:
// the caller's pipeline continues and the failure stays visible in the logs.
func (t *Trail) Write(ctx context.Context, runID, stage string, data map[string]any) Record {
	rec := Record{
		Timestamp: t.stamp(),
		RunID:     strings.TrimSpace(runID),
		Stage:     strings.TrimSpace(stage),
		Data:      data,
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if t == nil || t.sink == nil {
		return rec
	}
	// Records outlive the request: a cancelled caller still gets audited.
	if err := t.sink.Append(context.WithoutCancel(ctx), rec); err != nil {
		t.logger.Error("failed to append audit record",
			zap.String("run_id", rec.RunID),
			zap.String("stage", rec.Stage),
			zap.Error(err),
		)
	}
	return rec
}

// Close closes the underlying sink.
func (t *Trail) Close() error {
	if t == nil || t.sink == nil {
		return nil
	}
	return t.sink.Close()
}

func (t *Trail) stamp() time.Time {
	if t == nil {
		return time.Now().UTC().Truncate(time.Microsecond)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UTC().Truncate(time.Microsecond)
	if !ts.After(t.last) {
		ts = t.last.Add(time.Microsecond)
	}
	t.last = ts
	return ts
}
