package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/lotledger/internal/ledger"
)

// MemoryStore keeps the log in process memory. Used by tests and by the
// scenario harness.
//
// Thread-safety: safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events []ledger.Event
	closed bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records ev.
func (s *MemoryStore) Append(ctx context.Context, ev ledger.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.events = append(s.events, cloneEvent(ev))
	return nil
}

// ReadAll returns a sorted copy of the log.
func (s *MemoryStore) ReadAll(ctx context.Context) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]ledger.Event, len(s.events))
	for i, ev := range s.events {
		out[i] = cloneEvent(ev)
	}
	ledger.SortEvents(out)
	return out, nil
}

// EnsureSchema is a no-op: the in-memory log has no schema.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of recorded events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func cloneEvent(ev ledger.Event) ledger.Event {
	if ev.SlotStart != nil {
		ev.SlotStart = ledger.TimePtr(*ev.SlotStart)
	}
	if ev.SlotEnd != nil {
		ev.SlotEnd = ledger.TimePtr(*ev.SlotEnd)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	return ev
}
