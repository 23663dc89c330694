package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/lotledger/internal/clock"
	"github.com/roach88/lotledger/internal/ids"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lifecycle"
	"github.com/roach88/lotledger/internal/lots"
	"github.com/roach88/lotledger/internal/metrics"
	"github.com/roach88/lotledger/internal/notify"
	"github.com/roach88/lotledger/internal/store"
)

// DefaultAppVersion is recorded in the app_version column unless overridden.
const DefaultAppVersion = "v2"

// Engine serves reservation requests against one event log.
//
// Thread-safety: all methods are safe for concurrent use. Writes are
// serialized by an internal mutex; read views are not.
type Engine struct {
	mu sync.Mutex

	store     store.EventStore
	lots      lots.Source
	clock     clock.Clock
	ids       ids.Generator
	logger    *slog.Logger
	metrics   *metrics.Recorder
	publisher notify.Publisher
	lifecycle *lifecycle.Manager

	source     string
	appVersion string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to timestamp events. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDs sets the event and booking id generator. Default: ids.UUIDv7.
func WithIDs(g ids.Generator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics recorder. Default: none.
func WithMetrics(r *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithPublisher forwards appended events to p. Default: none.
func WithPublisher(p notify.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithSource sets the source column of request events. Default: cli.
func WithSource(source string) Option {
	return func(e *Engine) {
		e.source = source
	}
}

// WithAppVersion sets the app_version column. Default: DefaultAppVersion.
func WithAppVersion(v string) Option {
	return func(e *Engine) {
		e.appVersion = v
	}
}

// New creates an Engine over st with lot configuration from src.
func New(st store.EventStore, src lots.Source, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		lots:       src,
		clock:      clock.System{},
		ids:        ids.UUIDv7{},
		logger:     slog.Default(),
		source:     ledger.SourceCLI,
		appVersion: DefaultAppVersion,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lifecycle = lifecycle.NewManager(e.store, e.ids,
		lifecycle.WithLogger(e.logger),
		lifecycle.WithAppVersion(e.appVersion),
	)
	return e
}

// Now returns the engine clock's current instant.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// snapshot reads the lot configuration and the log.
func (e *Engine) snapshot(ctx context.Context) ([]ledger.Lot, []ledger.Event, error) {
	configured, err := e.lots.Lots(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load lots: %w", err)
	}
	events, err := e.store.ReadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("read events: %w", err)
	}
	return configured, events, nil
}

// append writes ev and records the attempt.
func (e *Engine) append(ctx context.Context, ev ledger.Event) error {
	start := time.Now()
	err := e.store.Append(ctx, ev)
	e.metrics.Append(ev.Action, err, time.Since(start))
	if err != nil {
		e.logger.Warn("append failed",
			"action", ev.Action,
			"lot_id", ev.LotID,
			"booking_id", ev.BookingID,
			"error", err,
		)
		return fmt.Errorf("append %s event: %w", ev.Action, err)
	}
	e.logger.Info("event appended",
		"event_id", ev.ID,
		"action", ev.Action,
		"success", ev.Success,
		"lot_id", ev.LotID,
		"booking_id", ev.BookingID,
		"error_code", ev.ErrorCode,
	)
	return nil
}

// publish forwards events downstream. Failures are logged only: the events
// are already durable.
func (e *Engine) publish(ctx context.Context, events []ledger.Event) {
	if e.publisher == nil || len(events) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, events); err != nil {
		e.logger.Warn("publish events failed", "count", len(events), "error", err)
	}
}

// newEvent fills the columns every request event shares.
func (e *Engine) newEvent(now time.Time, action ledger.Action) ledger.Event {
	return ledger.Event{
		ID:         e.ids.New(),
		Timestamp:  now.UTC(),
		Action:     action,
		Source:     e.source,
		AppVersion: e.appVersion,
	}
}
