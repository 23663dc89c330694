package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/ledger"
)

// CloseResult reports a sweep or day close.
type CloseResult struct {
	At     time.Time      `json:"at"`
	Closed int            `json:"closed"`
	Events []ledger.Event `json:"events"`
}

func writeCloseText(w io.Writer, verb string, result CloseResult) {
	fmt.Fprintf(w, "%s at %s: %d booking(s) closed\n", verb, ledger.FormatInstant(result.At), result.Closed)
	for _, ev := range result.Events {
		fmt.Fprintf(w, "  %s %s (%s on %s)\n", ev.BookingID, ev.Action, ev.RequesterID, ev.LotID)
	}
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		At string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close bookings whose slot has ended",
		Long: `Close every open booking whose slot ended before the given instant:
checked-in bookings expire, the rest are marked no-show. Running it again
for the same instant closes nothing.

Examples:
  lotledger sweep
  lotledger sweep --at 2025-03-10T23:59:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			at, err := parseInstant(opts.At, a.engine.Now())
			if err != nil {
				return err
			}
			closed, err := a.engine.Sweep(orBackground(cmd.Context()), at)
			if err != nil {
				return engineError(fmt.Sprintf("sweep failed after closing %d booking(s)", len(closed)), err)
			}

			result := CloseResult{At: at, Closed: len(closed), Events: nonNil(closed)}
			return formatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
				writeCloseText(w, "Sweep", result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "sweep instant, HH:MM today or an instant (default now)")

	return cmd
}

// NewCloseDayCommand creates the close-day command.
func NewCloseDayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		At  string
		Yes bool
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "close-day",
		Short: "Close every open booking",
		Long: `Close every open booking, whatever its slot, as the end-of-day
operator action. Bookings in progress are cut at the closing instant.
Requires --yes.

Examples:
  lotledger close-day --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.Yes {
				return NewExitError(ExitCommandError, "close-day closes every open booking; pass --yes to confirm")
			}

			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			at, err := parseInstant(opts.At, a.engine.Now())
			if err != nil {
				return err
			}
			closed, err := a.engine.CloseDay(orBackground(cmd.Context()), at)
			if err != nil {
				return engineError(fmt.Sprintf("close-day failed after closing %d booking(s)", len(closed)), err)
			}

			result := CloseResult{At: at, Closed: len(closed), Events: nonNil(closed)}
			return formatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
				writeCloseText(w, "Day closed", result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "closing instant, HH:MM today or an instant (default now)")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm closing every open booking")

	return cmd
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct{ *RootOptions }{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the event log to the current schema",
		Long: `Create the event log if missing and upgrade its schema in place:
a CSV log gets the current header with missing columns appended, a
SQLite log gets its pending migrations. Safe to run repeatedly.

Examples:
  lotledger migrate
  lotledger migrate --backend sqlite --events events.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.EnsureSchema(orBackground(cmd.Context())); err != nil {
				return engineError("migration failed", err)
			}

			data := map[string]string{"events": a.cfg.EventsPath, "backend": a.cfg.Backend}
			return formatter(opts.RootOptions, cmd).Success(data, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s log %s is up to date\n", a.cfg.Backend, a.cfg.EventsPath)
			})
		},
	}

	return cmd
}

func nonNil(events []ledger.Event) []ledger.Event {
	if events == nil {
		return []ledger.Event{}
	}
	return events
}
