package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lock"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - events table without provenance columns
// 1 - added source and app_version
const currentSchemaVersion = 1

// SQLiteStore keeps the log in a SQLite database.
// Uses WAL mode so readers never block the single writer.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	observer func(time.Duration)
}

// OpenSQLite creates or opens the database at path and applies pragmas and
// migrations. Idempotent.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - FULL synchronous mode, since every append is a commitment to a requester
//   - busy timeout equal to the lock timeout
func OpenSQLite(path string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &IOError{Op: "open database", Path: path, Err: err}
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = lock.DefaultTimeout
	}
	if err := applyPragmas(db, timeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, observer: opts.observe}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB. Used by tests.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Append inserts ev. Re-appending an event_id that is already stored is a
// no-op, so a retried append after an ambiguous failure cannot duplicate.
func (s *SQLiteStore) Append(ctx context.Context, ev ledger.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (
			event_id, timestamp, requester_id, action, reason, lot_id, spot_id,
			booking_id, success, free_after, capacity, source, app_version,
			error_code, slot_start, slot_end
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`,
		ev.ID,
		ledger.FormatInstant(ev.Timestamp),
		ev.RequesterID,
		string(ev.Action),
		ev.Reason,
		ev.LotID,
		ev.SpotID,
		ev.BookingID,
		ev.Success,
		ev.FreeAfter,
		ev.Capacity,
		ev.Source,
		ev.AppVersion,
		string(ev.ErrorCode),
		nullInstant(ev.SlotStart),
		nullInstant(ev.SlotEnd),
	)
	s.observer(time.Since(start))
	if err != nil {
		return s.classify("append event", err)
	}
	return nil
}

// ReadAll returns every event ordered by (timestamp, event_id).
func (s *SQLiteStore) ReadAll(ctx context.Context) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, timestamp, requester_id, action, reason, lot_id, spot_id,
		       booking_id, success, free_after, capacity, source, app_version,
		       error_code, slot_start, slot_end
		FROM events
		ORDER BY timestamp ASC, event_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, s.classify("read events", err)
	}
	defer rows.Close()

	events := []ledger.Event{}
	for rows.Next() {
		var (
			ev                 ledger.Event
			ts, action, code   string
			slotStart, slotEnd sql.NullString
		)
		if err := rows.Scan(
			&ev.ID, &ts, &ev.RequesterID, &action, &ev.Reason, &ev.LotID, &ev.SpotID,
			&ev.BookingID, &ev.Success, &ev.FreeAfter, &ev.Capacity, &ev.Source, &ev.AppVersion,
			&code, &slotStart, &slotEnd,
		); err != nil {
			return nil, s.classify("scan event", err)
		}
		ev.Timestamp, _ = ledger.ParseInstant(ts)
		ev.Action, _ = ledger.ParseAction(action)
		ev.ErrorCode = ledger.ParseErrorCode(code)
		ev.SlotStart, _ = parseOptionalInstant(slotStart.String)
		ev.SlotEnd, _ = parseOptionalInstant(slotEnd.String)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("iterate events", err)
	}

	// Textual order matches time order for rows this package wrote; sort
	// anyway for rows imported in other instant formats.
	ledger.SortEvents(events)
	return events, nil
}

// EnsureSchema re-runs migrations. Open already did; this exists so that
// both backends answer the migrate command the same way.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := applySchema(s.db); err != nil {
		return s.classify("ensure schema", err)
	}
	return nil
}

// classify maps SQLite contention onto ErrLockTimeout and everything else
// onto *IOError.
func (s *SQLiteStore) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && (sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%s %s: %w", op, s.path, ErrLockTimeout)
	}
	return &IOError{Op: op, Path: s.path, Err: err}
}

func nullInstant(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: ledger.FormatInstant(*t), Valid: true}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB, busy time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the provenance columns. schema.sql leaves them out so
// that fresh and old databases reach the same shape through this one path.
func migrateToV1(db *sql.DB) error {
	have, err := tableColumns(db, "events")
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	for _, col := range []string{ledger.ColSource, ledger.ColAppVersion} {
		if have[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE events ADD COLUMN %s TEXT NOT NULL DEFAULT ''", col)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := map[string]bool{}
	for rows.Next() {
		var (
			cid        int
			name, kind string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &kind, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteStore) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
