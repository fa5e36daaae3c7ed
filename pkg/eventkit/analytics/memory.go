package analytics

import (
	"context"
	"sync"

	"github.com/randalmurphal/eventkit/pkg/eventkit/event"
)

// MemorySink keeps flushed batches in memory. Intended for development and
// tests; production deployments use the sqlite or redis sinks.
type MemorySink struct {
	mu      sync.Mutex
	batches [][]event.Event
}

// Compile-time interface check.
var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// WriteBatch implements Sink.
func (s *MemorySink) WriteBatch(_ context.Context, batch []event.Event) error {
	cp := make([]event.Event, len(batch))
	copy(cp, batch)

	s.mu.Lock()
	s.batches = append(s.batches, cp)
	s.mu.Unlock()
	return nil
}

// Batches returns a snapshot of all flushed batches in flush order.
func (s *MemorySink) Batches() [][]event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]event.Event, len(s.batches))
	copy(out, s.batches)
	return out
}

// Len returns the total number of events across all flushed batches.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}
