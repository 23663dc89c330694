package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/lotledger/internal/config"
	"github.com/roach88/lotledger/internal/engine"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lock"
	"github.com/roach88/lotledger/internal/lots"
	"github.com/roach88/lotledger/internal/metrics"
	"github.com/roach88/lotledger/internal/notify"
	"github.com/roach88/lotledger/internal/store"
)

// app is one command's wiring of store, lots, metrics and publisher around
// an engine.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    store.EventStore
	lots     lots.Source
	engine   *engine.Engine
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	closers  []func() error
}

// openApp builds the app from the loaded configuration. Callers must close
// it.
func openApp(opts *RootOptions) (*app, error) {
	cfg := opts.cfg
	a := &app{
		cfg:      cfg,
		logger:   opts.logger,
		registry: prometheus.NewRegistry(),
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.metrics = metrics.New(a.registry)

	backend, err := store.ParseBackend(cfg.Backend)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid backend", err)
	}

	locker, err := a.locker()
	if err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "failed to set up lock", err)
	}

	st, err := store.Open(backend, cfg.EventsPath, store.Options{
		Locker:       locker,
		LockTimeout:  cfg.LockTimeout,
		Logger:       a.logger,
		LockObserver: a.metrics.LockWait,
	})
	if err != nil {
		a.close()
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	a.lots = lots.Open(cfg.LotsPath)

	engineOpts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithMetrics(a.metrics),
		engine.WithSource(cfg.Source),
		engine.WithAppVersion(cfg.AppVersion),
	}
	if pub := a.publisher(); pub != nil {
		engineOpts = append(engineOpts, engine.WithPublisher(pub))
	}
	a.engine = engine.New(st, a.lots, engineOpts...)
	return a, nil
}

// locker returns the configured writer lock. Only the CSV store uses it.
func (a *app) locker() (lock.Locker, error) {
	cfg := a.cfg
	switch cfg.LockBackend {
	case config.LockRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		a.closers = append(a.closers, client.Close)
		return lock.NewRedisLocker(client, cfg.LockKey,
			lock.WithWait(cfg.LockTimeout, cfg.LockRetry),
		), nil
	default:
		return &lock.FileLocker{
			Path:       cfg.LockFilePath(),
			Timeout:    cfg.LockTimeout,
			Retry:      cfg.LockRetry,
			StaleAfter: cfg.LockStaleAfter,
			Logger:     a.logger,
		}, nil
	}
}

// publisher connects to the broker when one is configured. A broker that
// cannot be reached is logged and skipped: the log does not depend on it.
func (a *app) publisher() notify.Publisher {
	if a.cfg.AMQPURL == "" {
		return nil
	}
	p, err := notify.DialAMQP(a.cfg.AMQPURL, a.cfg.AMQPQueue)
	if err != nil {
		a.logger.Warn("event publishing disabled", "error", err)
		return nil
	}
	a.closers = append(a.closers, p.Close)
	return notify.PublisherFunc(func(ctx context.Context, events []ledger.Event) error {
		ctx, cancel := context.WithTimeout(ctx, config.PublishTimeout)
		defer cancel()
		return p.Publish(ctx, events)
	})
}

// close releases everything openApp acquired, last first.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// parseInstant reads a time flag. Empty means now; "HH:MM" is that time
// today (UTC); anything else must be a full instant.
func parseInstant(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.UTC(), nil
	}
	if t, err := time.Parse("15:04", raw); err == nil {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, time.UTC), nil
	}
	t, err := ledger.ParseInstant(raw)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid time %q: use HH:MM or an RFC 3339 instant", raw))
	}
	return t, nil
}
