package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/config"
	"github.com/roach88/lotledger/internal/ledger"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		Addr     string
		Interval time.Duration
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the periodic sweeper and expose metrics",
		Long: `Sweep ended bookings on start and then every interval, refresh the
occupancy gauges, and serve Prometheus metrics on /metrics until
interrupted.

Examples:
  lotledger serve
  lotledger serve --addr :9100 --interval 30s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			addr := opts.Addr
			if addr == "" {
				addr = a.cfg.MetricsAddr
			}
			interval := opts.Interval
			if interval <= 0 {
				interval = a.cfg.SweepInterval
			}

			ctx, stop := signal.NotifyContext(orBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, addr, interval)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "metrics listen address (env LOTLEDGER_METRICS_ADDR)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "sweep interval (env LOTLEDGER_SWEEP_INTERVAL)")

	return cmd
}

func serve(ctx context.Context, a *app, addr string, interval time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()

	runSweeper(ctx, a, interval)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "metrics server shutdown", err)
	}
	if err, ok := <-serveErr; ok && err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("metrics server on %s", addr), err)
	}
	return nil
}

// runSweeper sweeps immediately and then every interval until ctx is done.
// Failures are logged and retried on the next tick.
func runSweeper(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tick(ctx, a)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func tick(ctx context.Context, a *app) {
	now := a.engine.Now()
	closed, err := a.engine.Sweep(ctx, now)
	if err != nil {
		a.logger.Warn("sweep failed", "closed", len(closed), "error", err)
	} else if len(closed) > 0 {
		a.logger.Info("sweep closed bookings", "closed", len(closed), "at", ledger.FormatInstant(now))
	}
	if _, err := a.engine.Occupancy(ctx, now); err != nil {
		a.logger.Warn("occupancy refresh failed", "error", err)
	}
}
