// Package ledger defines the shared vocabulary of the lot reservation log.
//
// An Event is one immutable row of the append-only log. Everything else in
// lotledger (active bookings, occupancy, waitlist, check-in status) is a
// deterministic fold over the ordered event sequence.
//
// # Ordering
//
// Events are totally ordered by (Timestamp, ID). SortEvents is the single
// implementation of that rule; stores and projections must not order events
// any other way.
//
// # Legacy logs
//
// Logs written by earlier versions used Spanish action names, error codes and
// column headers (accion, motivo, user_email, free_spots_after). ParseAction,
// ParseErrorCode and ResolveColumn map them onto the current vocabulary so
// old rows keep their meaning.
package ledger
