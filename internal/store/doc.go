// Package store provides durable storage for the lotledger event log.
//
// The store is append-only: events are never updated or deleted, and every
// piece of derived state is recomputed from ReadAll.
//
// # Backends
//
//   - CSVStore: the production log, a CSV file with one event per line.
//     Appends are serialized by an advisory lock (internal/lock) and each
//     append is one write(2) of one complete record, so lock-free readers see
//     the log either before or after an append, never half of one.
//   - SQLiteStore: the same log in a SQLite table (WAL mode). SQLite's own
//     locking takes the place of the advisory lock.
//   - MemoryStore: an in-process log for tests.
//
// # Ordering
//
// ReadAll always returns events sorted by (timestamp, event_id), whatever the
// physical order of rows.
//
// # Schema drift
//
// Logs written by earlier versions may lack newer columns or use legacy
// header names. Readers default missing and unparsable values instead of
// dropping rows, logging each defaulted column as a warning. EnsureSchema
// upgrades an old log in place, keeping every row.
package store
