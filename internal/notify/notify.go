// Package notify forwards appended events to downstream consumers.
//
// Publishing is best-effort. The event log is the source of truth, so a
// failed publish is reported to the caller for logging but never undoes or
// blocks an append.
package notify

import (
	"context"

	"github.com/roach88/lotledger/internal/ledger"
)

// Publisher delivers events that have already been appended to the log.
type Publisher interface {
	Publish(ctx context.Context, events []ledger.Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, events []ledger.Event) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, events []ledger.Event) error {
	return f(ctx, events)
}

// Nop discards events.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, []ledger.Event) error {
	return nil
}
