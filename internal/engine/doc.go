// Package engine implements the reservation engine: the entry point that
// serves reserve, cancel and checkin requests and answers occupancy queries.
//
// ARCHITECTURE:
//
// Every request follows the same read-decide-append cycle:
//  1. read a snapshot of the whole log from the EventStore
//  2. decide with the pure projection and conflict functions
//  3. append exactly one event describing the decision
//
// Business non-admissions (overlap, no capacity, duplicate check-in, nothing
// to cancel) are not errors. They are recorded as events for the audit trail
// and returned as an Outcome. Errors are reserved for bad input
// (*RequestError) and for storage failures (store.ErrLockTimeout,
// *store.IOError), in which case no event was written.
//
// CONCURRENCY:
//
// Requests on one Engine are serialized by a mutex held across the whole
// cycle, so two goroutines never decide on the same snapshot. Separate
// processes are serialized at append time by the store's writer lock only;
// see DESIGN.md for the resulting cross-process window.
//
// TIME:
//
// Event timestamps come from the injected Clock. Read views and lifecycle
// operations take the reference instant as an explicit argument.
package engine
