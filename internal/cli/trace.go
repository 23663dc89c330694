package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/engine"
	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/projection"
)

// TraceResult is the history of one booking.
type TraceResult struct {
	Booking BookingView    `json:"booking"`
	Events  []ledger.Event `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		Booking string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show every event of one booking",
		Long: `Show a booking's derived state and every event that refers to it, in
log order: the reservation, check-ins (failed ones included),
cancellation and closure.

Examples:
  lotledger trace --booking 0195c1d2-...
  lotledger trace --booking 0195c1d2-... --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := orBackground(cmd.Context())
			events, err := a.engine.Trace(ctx, opts.Booking)
			if err != nil {
				if engine.IsRequestError(err) {
					return WrapExitError(ExitCommandError, "trace failed", err)
				}
				return engineError("trace failed", err)
			}

			result := TraceResult{Events: events}
			if b, err := a.engine.Booking(ctx, opts.Booking); err == nil {
				result.Booking = bookingViews([]projection.Booking{b})[0]
			} else {
				result.Booking = BookingView{BookingID: opts.Booking}
			}

			return formatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
				writeTraceText(w, result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Booking, "booking", "", "booking id (required)")
	_ = cmd.MarkFlagRequired("booking")

	return cmd
}

func writeTraceText(w io.Writer, result TraceResult) {
	b := result.Booking
	if b.State != "" {
		fmt.Fprintf(w, "Booking %s: %s on %s, %s\n\n", b.BookingID, b.RequesterID, b.LotID, b.State)
	} else {
		fmt.Fprintf(w, "Booking %s (no reserve event)\n\n", b.BookingID)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tACTION\tSUCCESS\tCODE\tSOURCE\tEVENT")
	for _, ev := range result.Events {
		code := string(ev.ErrorCode)
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n",
			ledger.FormatInstant(ev.Timestamp), ev.Action, ev.Success, code, ev.Source, ev.ID)
	}
	_ = tw.Flush()
}
