package audit

import (
	"context"
	"errors"
)

// MultiSink fans every record out to each sink in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to all non-nil sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

// Append writes rec to every sink; one failing sink does not stop the others.
func (m *MultiSink) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks receive records.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}
