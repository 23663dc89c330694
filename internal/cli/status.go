package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lots"
	"github.com/roach88/lotledger/internal/projection"
)

// StatusResult is the occupancy view at one instant.
type StatusResult struct {
	At   time.Time   `json:"at"`
	Lots []LotStatus `json:"lots"`
}

// LotStatus is one row of the occupancy view.
type LotStatus struct {
	LotID    string `json:"lot_id"`
	Name     string `json:"name,omitempty"`
	Capacity int    `json:"capacity"`
	Occupied int    `json:"occupied"`
	Free     int    `json:"free"`
	Active   bool   `json:"active"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		At       string
		Snapshot string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show occupancy per lot",
		Long: `Show capacity, occupied and free spaces for every configured lot.

Occupancy counts open bookings whose slot has not ended at the given
instant. With --write-snapshot the view is also written as a lot CSV
file for readers that expect the legacy snapshot.

Examples:
  lotledger status
  lotledger status --at 14:00
  lotledger status --write-snapshot Parqueos.snapshot.csv`,
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
			rows, err := a.engine.Occupancy(orBackground(cmd.Context()), at)
			if err != nil {
				return engineError("failed to read occupancy", err)
			}

			result := StatusResult{At: at, Lots: make([]LotStatus, 0, len(rows))}
			for _, row := range rows {
				result.Lots = append(result.Lots, LotStatus(row))
			}

			if opts.Snapshot != "" {
				if err := writeSnapshot(opts.Snapshot, result); err != nil {
					return WrapExitError(ExitCommandError, "failed to write snapshot", err)
				}
			}

			return formatter(opts.RootOptions, cmd).Success(result, func(w io.Writer) {
				writeStatusText(w, result)
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "instant to report, HH:MM today or an instant (default now)")
	cmd.Flags().StringVar(&opts.Snapshot, "write-snapshot", "", "also write the view to this CSV path")

	return cmd
}

func writeSnapshot(path string, result StatusResult) error {
	configured := make([]ledger.Lot, 0, len(result.Lots))
	occupied := map[string]int{}
	for _, row := range result.Lots {
		configured = append(configured, ledger.Lot{ID: row.LotID, Name: row.Name, Capacity: row.Capacity, Active: row.Active})
		occupied[row.LotID] = row.Occupied
	}
	return lots.WriteSnapshot(path, configured, occupied)
}

func writeStatusText(w io.Writer, result StatusResult) {
	fmt.Fprintf(w, "Occupancy at %s\n\n", ledger.FormatInstant(result.At))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOT\tNAME\tCAPACITY\tOCCUPIED\tFREE\tACTIVE")
	for _, row := range result.Lots {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%t\n", row.LotID, row.Name, row.Capacity, row.Occupied, row.Free, row.Active)
	}
	_ = tw.Flush()
}

// BookingView is a booking as listed by the CLI.
type BookingView struct {
	BookingID   string           `json:"booking_id"`
	RequesterID string           `json:"requester_id"`
	LotID       string           `json:"lot_id"`
	Reason      string           `json:"reason,omitempty"`
	State       projection.State `json:"state"`
	SlotStart   *time.Time       `json:"slot_start,omitempty"`
	SlotEnd     *time.Time       `json:"slot_end,omitempty"`
	ReservedAt  time.Time        `json:"reserved_at"`
}

func bookingViews(bookings []projection.Booking) []BookingView {
	out := make([]BookingView, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, BookingView{
			BookingID:   b.ID,
			RequesterID: b.RequesterID,
			LotID:       b.LotID,
			Reason:      b.Reason,
			State:       b.State,
			SlotStart:   b.SlotStart,
			SlotEnd:     b.SlotEnd,
			ReservedAt:  b.ReservedAt,
		})
	}
	return out
}

// NewActiveCommand creates the active command.
func NewActiveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct {
		*RootOptions
		At        string
		Requester string
	}{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "active",
		Short: "List active bookings",
		Long: `List the bookings that count against their lot at an instant:
confirmed or checked in, and not yet ended.

Examples:
  lotledger active
  lotledger active --requester 2023001 --format json`,
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
			ctx := orBackground(cmd.Context())

			var bookings []projection.Booking
			if opts.Requester != "" {
				bookings, err = a.engine.RequesterBookings(ctx, opts.Requester, at)
			} else {
				bookings, err = a.engine.ActiveBookings(ctx, at)
			}
			if err != nil {
				return engineError("failed to read bookings", err)
			}

			views := bookingViews(bookings)
			return formatter(opts.RootOptions, cmd).Success(views, func(w io.Writer) {
				writeBookingsText(w, views)
			})
		},
	}

	cmd.Flags().StringVar(&opts.At, "at", "", "instant to report, HH:MM today or an instant (default now)")
	cmd.Flags().StringVar(&opts.Requester, "requester", "", "only this requester's bookings")

	return cmd
}

func writeBookingsText(w io.Writer, views []BookingView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No active bookings.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BOOKING\tREQUESTER\tLOT\tSTATE\tSTART\tEND")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			v.BookingID, v.RequesterID, v.LotID, v.State, formatSlot(v.SlotStart), formatSlot(v.SlotEnd))
	}
	_ = tw.Flush()
}

func formatSlot(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return ledger.FormatInstant(*t)
}

// NewWaitlistCommand creates the waitlist command.
func NewWaitlistCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &struct{ *RootOptions }{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "List waitlist entries",
		Long: `List every request that was waitlisted, oldest first, with the reason.

Examples:
  lotledger waitlist --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions)
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.engine.Waitlist(orBackground(cmd.Context()))
			if err != nil {
				return engineError("failed to read waitlist", err)
			}
			if entries == nil {
				entries = []projection.WaitlistEntry{}
			}

			return formatter(opts.RootOptions, cmd).Success(entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "Waitlist is empty.")
					return
				}
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "AT\tREQUESTER\tLOT\tREASON\tSTART\tEND")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						ledger.FormatInstant(e.At), e.RequesterID, e.LotID, e.Code, formatSlot(e.SlotStart), formatSlot(e.SlotEnd))
				}
				_ = tw.Flush()
			})
		},
	}

	return cmd
}
