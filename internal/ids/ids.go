// Package ids generates event and booking identifiers.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
// Implemented by UUIDv7 (production) and Sequence (tests, scenarios).
type Generator interface {
	New() string
}

// UUIDv7 generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a millisecond timestamp in its high bits, so ids recorded in
// the same millisecond still break timestamp ties in roughly creation order.
//
// Thread-safety: UUIDv7 is stateless and safe for concurrent use.
type UUIDv7 struct{}

// New returns a hyphenated UUIDv7 string.
// Panics if the system random source fails.
func (UUIDv7) New() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Sequence returns predictable ids of the form "<prefix>-0001", "<prefix>-0002", ...
//
// Lexical order of the ids equals generation order (up to 9999 ids), which
// makes event ties at the same timestamp resolve in creation order.
//
// Thread-safety: Sequence is safe for concurrent use via internal mutex.
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a Sequence. An empty prefix defaults to "id".
func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "id"
	}
	return &Sequence{prefix: prefix}
}

// New returns the next id in the sequence.
func (s *Sequence) New() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%04d", s.prefix, s.n)
}

// Issued returns how many ids have been generated.
func (s *Sequence) Issued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}
