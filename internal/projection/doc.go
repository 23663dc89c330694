// Package projection folds the event log into derived views.
//
// Every function here is pure: the result depends only on the events passed
// in and, where a view is time-dependent, on the reference instant now. None
// of them read a clock or touch storage, so calling one twice with the same
// arguments always yields the same answer.
//
// A booking's lifecycle is derived once, by Bookings, into an explicit State.
// The other views are filters over that fold, so every caller sees the same
// interpretation of the log.
package projection
