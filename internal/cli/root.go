package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Flag overrides of the environment configuration.
	Events  string
	Lots    string
	Backend string

	// Env replaces the process environment when set. Used by tests.
	Env map[string]string

	cfg    config.Config
	logger *slog.Logger
	ready  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lotledger CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lotledger",
		Short: "lotledger - parking lot reservations on an append-only log",
		Long: `Reserve, cancel and check in to parking lots. Every request is an
immutable event in the log; occupancy, bookings and the waitlist are
derived from it on each read.

Configuration comes from LOTLEDGER_* environment variables; the global
flags below override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.prepare(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Events, "events", "", "event log path (env LOTLEDGER_EVENTS)")
	cmd.PersistentFlags().StringVar(&opts.Lots, "lots", "", "lot configuration path, .csv or .yaml (env LOTLEDGER_LOTS)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "event store backend: csv, sqlite or memory (env LOTLEDGER_BACKEND)")

	cmd.AddCommand(NewReserveCommand(opts))
	cmd.AddCommand(NewCancelCommand(opts))
	cmd.AddCommand(NewCheckinCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewActiveCommand(opts))
	cmd.AddCommand(NewWaitlistCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewCloseDayCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

// prepare loads the configuration, applies flag overrides and sets up
// logging. Diagnostics go to stderr so that JSON output stays clean.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if o.ready {
		return nil
	}

	var (
		cfg config.Config
		err error
	)
	if o.Env != nil {
		cfg, err = config.LoadFrom(o.Env)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Events != "" {
		cfg.EventsPath = o.Events
	}
	if o.Lots != "" {
		cfg.LotsPath = o.Lots
	}
	if o.Backend != "" {
		cfg.Backend = o.Backend
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	o.cfg = cfg
	o.logger = newLogger(cmd.ErrOrStderr(), o.Verbose)
	slog.SetDefault(o.logger)
	o.ready = true
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
