// Package harness runs reservation scenarios against the engine.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: cancel_then_rebook
//	description: "A cancelled slot can be booked again"
//	lots:
//	  - { id: P1, capacity: 1, active: true }
//	steps:
//	  - op: reserve
//	    at: "08:00"
//	    requester: u1
//	    lot: P1
//	    start: "10:00"
//	    end: "11:00"
//	    as: b1
//	    expect: { outcome: admitted, free: 0 }
//	  - op: cancel
//	    at: "08:05"
//	    requester: u1
//	    lot: P1
//	    expect: { outcome: cancelled }
//	assertions:
//	  - { type: booking_state, booking: b1, state: cancelled }
//
// Times are "HH:MM" on the scenario day (default 2025-03-10, UTC) or full
// instants. A reserve step may name the booking it creates with "as"; later
// steps and assertions refer to it by that name.
//
// # Operations
//
//   - reserve, cancel, checkin: the request operations
//   - sweep, close_day: lifecycle operations at the step instant
//   - occupancy: reads occupancy at the step instant
//
// # Assertion Types
//
//   - log_count: the log holds exactly count events of action
//   - log_order: the first event of each listed action appears in order
//   - booking_state: a named booking is in the given state
//   - replay_ok: folding the log forwards and backwards agrees and finds no
//     double-booking
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store, a manual clock set to each step's
// instant and sequential ids ("id-0001", ...), so traces are byte-identical
// across runs and can be compared with golden files.
package harness
