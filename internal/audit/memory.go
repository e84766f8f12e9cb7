package audit

import (
	"context"
	"sync"
)

// MemorySink keeps records in process. Used by tests and the evaluate command.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Records returns a copy of everything appended so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByStage returns the records whose stage equals stage.
func (s *MemorySink) ByStage(stage string) []Record {
	var out []Record
	for _, rec := range s.Records() {
		if rec.Stage == stage {
			out = append(out, rec)
		}
	}
	return out
}
