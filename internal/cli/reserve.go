package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/engine"
	"github.com/roach88/lotledger/internal/ledger"
)

// ReserveOptions holds flags for the reserve command.
type ReserveOptions struct {
	*RootOptions
	Requester string
	Lot       string
	Reason    string
	Start     string
	End       string
	Duration  time.Duration
}

// NewReserveCommand creates the reserve command.
func NewReserveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReserveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reserve",
		Short: "Reserve a lot for a time slot",
		Long: `Reserve a lot for [start, end).

The request is admitted when no open booking on the lot overlaps the slot
and the lot has free space at the slot start. Otherwise it is recorded on
the waitlist with reason OVERLAP or NO_CAPACITY.

Exit codes:
  0 - Admitted
  1 - Waitlisted, or the log was busy
  2 - Invalid request (unknown or inactive lot, empty slot, ...)

Examples:
  lotledger reserve --requester 2023001 --lot P1 --start 10:00 --duration 1h
  lotledger reserve --requester 2023001 --lot P1 --start 2025-03-10T10:00:00Z --end 2025-03-10T12:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReserve(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Requester, "requester", "", "requester id (required)")
	_ = cmd.MarkFlagRequired("requester")
	cmd.Flags().StringVar(&opts.Lot, "lot", "", "lot id (required)")
	_ = cmd.MarkFlagRequired("lot")
	cmd.Flags().StringVar(&opts.Reason, "reason", "", "reason for the reservation")
	cmd.Flags().StringVar(&opts.Start, "start", "", "slot start, HH:MM today or an instant (required)")
	_ = cmd.MarkFlagRequired("start")
	cmd.Flags().StringVar(&opts.End, "end", "", "slot end, HH:MM today or an instant")
	cmd.Flags().DurationVar(&opts.Duration, "duration", time.Hour, "slot length when --end is not given")

	return cmd
}

func runReserve(ctx context.Context, opts *ReserveOptions, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.close()

	now := a.engine.Now()
	start, err := parseInstant(opts.Start, now)
	if err != nil {
		return err
	}
	end := start.Add(opts.Duration)
	if opts.End != "" {
		if end, err = parseInstant(opts.End, now); err != nil {
			return err
		}
	}

	res, err := a.engine.Reserve(orBackground(ctx), engine.ReserveRequest{
		RequesterID: opts.Requester,
		LotID:       opts.Lot,
		Reason:      opts.Reason,
		Start:       start,
		End:         end,
	})
	return reportResult(opts.RootOptions, cmd, "reserve", res, err)
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		Requester string
		Lot       string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the requester's latest booking on a lot",
		Long: `Cancel the requester's open booking on a lot with the latest slot start.

With nothing to cancel, a failed cancel is still recorded with reason
NO_ACTIVE_BOOKING and the command exits with 1.

Examples:
  lotledger cancel --requester 2023001 --lot P1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.Cancel(orBackground(cmd.Context()), opts.Requester, opts.Lot)
			return reportResult(opts.RootOptions, cmd, "cancel", res, err)
		},
	}

	cmd.Flags().StringVar(&opts.Requester, "requester", "", "requester id (required)")
	_ = cmd.MarkFlagRequired("requester")
	cmd.Flags().StringVar(&opts.Lot, "lot", "", "lot id (required)")
	_ = cmd.MarkFlagRequired("lot")

	return cmd
}

// NewCheckinCommand creates the checkin command.
func NewCheckinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		Requester string
		Booking   string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record arrival for a booking",
		Long: `Record the requester's arrival for a booking.

A second check-in is rejected with DUPLICATE_CHECKIN; a booking that is
closed, over, unknown or held by someone else with NO_ACTIVE_BOOKING.

Examples:
  lotledger checkin --requester 2023001 --booking 0195c1d2-...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.engine.Checkin(orBackground(cmd.Context()), opts.Requester, opts.Booking)
			return reportResult(opts.RootOptions, cmd, "checkin", res, err)
		},
	}

	cmd.Flags().StringVar(&opts.Requester, "requester", "", "requester id (required)")
	_ = cmd.MarkFlagRequired("requester")
	cmd.Flags().StringVar(&opts.Booking, "booking", "", "booking id (required)")
	_ = cmd.MarkFlagRequired("booking")

	return cmd
}

// reportResult prints a request result and maps it onto an exit code.
func reportResult(opts *RootOptions, cmd *cobra.Command, operation string, res engine.Result, err error) error {
	out := formatter(opts, cmd)
	if err != nil {
		if out.JSON() {
			_ = out.Error(ErrorCode(err), err.Error(), nil)
		}
		if engine.IsRequestError(err) {
			return WrapExitError(ExitCommandError, operation+" rejected", err)
		}
		return engineError(operation+" failed", err)
	}

	text := func(w io.Writer) { writeResultText(w, res) }
	if res.OK() {
		return out.Success(res, text)
	}
	if err := out.Failure(string(res.Reason), fmt.Sprintf("%s %s", operation, res.Outcome), res, text); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%s %s: %s", operation, res.Outcome, res.Reason))
}

func writeResultText(w io.Writer, res engine.Result) {
	switch res.Outcome {
	case engine.OutcomeAdmitted:
		fmt.Fprintf(w, "✓ Admitted: booking %s (%d free after)\n", res.BookingID, res.FreeAfter)
	case engine.OutcomeCancelled:
		fmt.Fprintf(w, "✓ Cancelled: booking %s (%d free)\n", res.BookingID, res.FreeAfter)
	case engine.OutcomeCheckedIn:
		fmt.Fprintf(w, "✓ Checked in: booking %s\n", res.BookingID)
	case engine.OutcomeWaitlisted:
		fmt.Fprintf(w, "✗ Waitlisted: %s\n", describeCode(res.Reason))
	default:
		fmt.Fprintf(w, "✗ Rejected: %s\n", describeCode(res.Reason))
	}
	for _, ev := range res.Events {
		fmt.Fprintf(w, "  event %s %s at %s\n", ev.ID, ev.Action, ledger.FormatInstant(ev.Timestamp))
	}
}

func describeCode(code ledger.ErrorCode) string {
	switch code {
	case ledger.CodeOverlap:
		return "the slot overlaps an existing booking (OVERLAP)"
	case ledger.CodeNoCapacity:
		return "the lot is full at the slot start (NO_CAPACITY)"
	case ledger.CodeNoActiveBooking:
		return "no active booking (NO_ACTIVE_BOOKING)"
	case ledger.CodeDuplicateCheckin:
		return "already checked in (DUPLICATE_CHECKIN)"
	default:
		return string(code)
	}
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
