package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/lotledger/internal/ledger"
	"github.com/roach88/lotledger/internal/lock"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore keeps the log in a CSV file.
//
// Writers serialize on the Locker. Readers take no lock: every append is a
// single write of one complete newline-terminated record on an O_APPEND
// descriptor, and ReadAll ignores a trailing line without its newline.
type CSVStore struct {
	path     string
	locker   lock.Locker
	logger   *slog.Logger
	observer func(time.Duration)
}

// OpenCSV opens the CSV log at path. The file is created on first append.
func OpenCSV(path string, opts Options) (*CSVStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open csv store: empty path")
	}
	locker := opts.Locker
	if locker == nil {
		fl := lock.NewFileLocker(path + ".lock")
		fl.Logger = opts.Logger
		locker = fl
	}
	return &CSVStore{
		path:     path,
		locker:   locker,
		logger:   opts.logger(),
		observer: opts.observe,
	}, nil
}

// Path returns the log file path.
func (s *CSVStore) Path() string {
	return s.path
}

// Append writes ev as one record, creating the file with a header or
// upgrading an old header first when needed.
func (s *CSVStore) Append(ctx context.Context, ev ledger.Event) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return s.withLock(ctx, func() error {
		header, err := s.ensureHeaderLocked()
		if err != nil {
			return err
		}
		return s.appendRecordLocked(encodeRecord(ev, header))
	})
}

// EnsureSchema upgrades the header of an existing log to the current column
// set, keeping every row. A missing or empty log gets a fresh header.
func (s *CSVStore) EnsureSchema(ctx context.Context) error {
	return s.withLock(ctx, func() error {
		_, err := s.ensureHeaderLocked()
		return err
	})
}

// ReadAll parses the log without taking the writer lock.
func (s *CSVStore) ReadAll(ctx context.Context) ([]ledger.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []ledger.Event{}, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read events", Path: s.path, Err: err}
	}
	return s.parse(s.completeLines(data)), nil
}

// Close releases nothing; the lock is held only during appends.
func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) withLock(ctx context.Context, fn func() error) error {
	start := time.Now()
	release, err := s.locker.Acquire(ctx)
	s.observer(time.Since(start))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) || ctx.Err() != nil {
			return err
		}
		return &IOError{Op: "lock events", Path: s.path, Err: err}
	}
	defer func() {
		if rerr := release(); rerr != nil {
			s.logger.Warn("release events lock", "path", s.path, "error", rerr)
		}
	}()
	return fn()
}

// ensureHeaderLocked returns the physical header of the log, writing one if
// the log is new and rewriting the file if columns are missing.
func (s *CSVStore) ensureHeaderLocked() ([]string, error) {
	header, err := s.readHeader()
	if err != nil {
		return nil, err
	}
	if header == nil {
		if err := s.writeFresh(); err != nil {
			return nil, err
		}
		return ledger.Columns, nil
	}
	missing := ledger.MissingColumns(header)
	if len(missing) == 0 {
		return header, nil
	}
	return s.upgradeLocked(header, missing)
}

// readHeader returns nil for a missing or empty log.
func (s *CSVStore) readHeader() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read header", Path: s.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(stripBOM(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read header", Path: s.path, Err: err}
	}
	return header, nil
}

func (s *CSVStore) writeFresh() error {
	line, err := formatRecord(ledger.Columns)
	if err != nil {
		return &IOError{Op: "write header", Path: s.path, Err: err}
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return &IOError{Op: "write header", Path: s.path, Err: err}
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &IOError{Op: "write header", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &IOError{Op: "write header", Path: s.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "write header", Path: s.path, Err: err}
	}
	return nil
}

// appendRecordLocked writes rec with a single write call. A previous crash
// can leave the file without a final newline; that fragment is terminated
// first so it reads back as its own row instead of corrupting this one.
func (s *CSVStore) appendRecordLocked(rec []string) error {
	line, err := formatRecord(rec)
	if err != nil {
		return &IOError{Op: "append event", Path: s.path, Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return &IOError{Op: "append event", Path: s.path, Err: err}
	}
	defer f.Close()

	torn, err := s.endsWithoutNewline()
	if err != nil {
		return err
	}
	if torn {
		line = append([]byte{'\n'}, line...)
	}

	if _, err := f.Write(line); err != nil {
		return &IOError{Op: "append event", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &IOError{Op: "sync events", Path: s.path, Err: err}
	}
	return nil
}

func (s *CSVStore) endsWithoutNewline() (bool, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return false, &IOError{Op: "append event", Path: s.path, Err: err}
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return false, &IOError{Op: "append event", Path: s.path, Err: err}
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, &IOError{Op: "append event", Path: s.path, Err: err}
	}
	return last[0] != '\n', nil
}

// upgradeLocked rewrites the log with missing columns appended to the
// header. Existing rows keep their values and get empty cells for the new
// columns. The rewrite goes through a temporary file and a rename so that
// readers see either the old or the new file.
func (s *CSVStore) upgradeLocked(header, missing []string) ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &IOError{Op: "upgrade schema", Path: s.path, Err: err}
	}
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		// Refuse to rewrite a file we cannot fully parse: rows would be lost.
		return nil, &IOError{Op: "upgrade schema", Path: s.path, Err: err}
	}

	upgraded := append(append([]string{}, header...), missing...)
	width := len(upgraded)
	records[0] = upgraded
	for i := 1; i < len(records); i++ {
		if n := len(records[i]); n < width {
			records[i] = append(records[i], make([]string, width-n)...)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return nil, &IOError{Op: "upgrade schema", Path: s.path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return nil, &IOError{Op: "upgrade schema", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, &IOError{Op: "upgrade schema", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &IOError{Op: "upgrade schema", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return nil, &IOError{Op: "upgrade schema", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return nil, &IOError{Op: "upgrade schema", Path: s.path, Err: err}
	}

	s.logger.Info("upgraded event log schema",
		"path", s.path,
		"added_columns", strings.Join(missing, ","),
		"rows", len(records)-1,
	)
	return upgraded, nil
}

// parse decodes complete log lines. Rows are never dropped: a row the CSV
// reader rejects outright is skipped with a warning, every other row is kept
// with its bad fields defaulted.
func (s *CSVStore) parse(data []byte) []ledger.Event {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return []ledger.Event{}
	}
	l := newLayout(header)
	if missing := ledger.MissingColumns(header); len(missing) > 0 {
		s.logger.Warn("event log lacks columns, defaulting",
			"path", s.path,
			"columns", strings.Join(missing, ","),
		)
	}

	events := []ledger.Event{}
	row := 0
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			s.logger.Warn("skip unreadable event row", "path", s.path, "row", row, "error", err)
			continue
		}
		if isBlank(rec) {
			continue
		}
		ev, defaulted := decodeRecord(l, rec, row)
		if len(defaulted) > 0 {
			s.logger.Warn("defaulted event fields",
				"path", s.path,
				"row", row,
				"event_id", ev.ID,
				"columns", strings.Join(defaulted, ","),
			)
		}
		events = append(events, ev)
	}
	ledger.SortEvents(events)
	return events
}

// completeLines drops a trailing line that has no newline yet, normally an
// append in flight. A tail that already decodes to a record as wide as the
// header is kept: hand-edited and exported logs often omit the final newline.
func (s *CSVStore) completeLines(data []byte) []byte {
	i := bytes.LastIndexByte(data, '\n')
	if i < 0 || i == len(data)-1 {
		// Header only, nothing, or newline-terminated.
		return data
	}
	tail := data[i+1:]
	if len(bytes.TrimSpace(tail)) == 0 {
		return data[:i+1]
	}
	if width := headerWidth(data); width > 0 && recordWidth(tail) >= width {
		return data
	}
	s.logger.Warn("skip incomplete trailing row", "path", s.path, "bytes", len(tail))
	return data[:i+1]
}

// headerWidth returns the number of columns in the first record of data.
func headerWidth(data []byte) int {
	return recordWidth(bytes.TrimPrefix(data, utf8BOM))
}

// recordWidth returns the field count of the first CSV record in data, or 0
// when it does not parse.
func recordWidth(data []byte) int {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rec, err := r.Read()
	if err != nil {
		return 0
	}
	return len(rec)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func formatRecord(rec []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(rec); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
