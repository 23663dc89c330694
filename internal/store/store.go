package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lock"
)

// EventStore is the durable append-only event log.
type EventStore interface {
	// Append durably records one event. It fails with ErrLockTimeout when
	// exclusive access is not obtained in time and with an *IOError on
	// storage failures; in both cases nothing is written.
	Append(ctx context.Context, ev ledger.Event) error

	// ReadAll returns every event ordered by (timestamp, event_id).
	ReadAll(ctx context.Context) ([]ledger.Event, error)

	// EnsureSchema upgrades an existing log to the current field set.
	// Idempotent.
	EnsureSchema(ctx context.Context) error

	Close() error
}

// Backend names a storage implementation.
type Backend string

const (
	BackendCSV    Backend = "csv"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendCSV, BackendSQLite, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown store backend %q: must be csv, sqlite or memory", s)
	}
}

// Options configures Open.
type Options struct {
	// Locker serializes CSV appends. Defaults to a FileLocker at path+".lock".
	Locker lock.Locker

	// LockTimeout bounds SQLite's busy wait. Defaults to lock.DefaultTimeout.
	LockTimeout time.Duration

	// Logger receives schema-drift warnings. Defaults to slog.Default().
	Logger *slog.Logger

	// LockObserver, if set, is called with the time spent waiting for the
	// writer lock on every append.
	LockObserver func(wait time.Duration)
}

// Open opens the event log at path with the given backend.
func Open(backend Backend, path string, opts Options) (EventStore, error) {
	switch backend {
	case BackendCSV:
		return OpenCSV(path, opts)
	case BackendSQLite:
		return OpenSQLite(path, opts)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", backend)
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) observe(wait time.Duration) {
	if o.LockObserver != nil {
		o.LockObserver(wait)
	}
}
