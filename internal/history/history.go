// Package history keeps a local record of harness runs, so unexpected
// passes and creeping failure counts are visible across runs instead of
// vanishing with the terminal scrollback.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/halvard/xpect/pkg/expect"
)

// Store records run outcomes in a local SQLite database.
type Store struct {
	db *sql.DB
}

// Run is one recorded harness run.
type Run struct {
	ID        string
	Timestamp time.Time
	Suite     string
	Pass      int
	Fail      int
	XFail     int
	UPass     int
	Skipped   int
	Unmatched int
	Clean     bool
}

// Open opens (or creates) the history database. When enabled is false the
// store is inert: every method succeeds and records nothing.
func Open(enabled bool) (*Store, error) {
	if !enabled {
		return &Store{}, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolving user config dir: %w", err)
	}
	dbPath := filepath.Join(configDir, "xpect", "history.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return s, nil
}

// OpenAt opens a store at an explicit path. Used by tests.
func OpenAt(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		suite TEXT,
		pass INTEGER NOT NULL,
		fail INTEGER NOT NULL,
		xfail INTEGER NOT NULL,
		upass INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		unmatched INTEGER NOT NULL,
		clean INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_suite ON runs(suite);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one run and returns its generated ID. A nil database (store
// disabled) records nothing and returns an empty ID.
func (s *Store) Record(rep *expect.Report, clean bool) (string, error) {
	if s.db == nil {
		return "", nil
	}
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, timestamp, suite, pass, fail, xfail, upass, skipped, unmatched, clean)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		// Nanosecond resolution keeps ordering stable for runs recorded
		// within the same second; rowid breaks the remaining ties.
		time.Now().UTC().Format(time.RFC3339Nano),
		rep.Suite,
		rep.Counts.Pass,
		rep.Counts.Fail,
		rep.Counts.XFail,
		rep.Counts.UPass,
		rep.Counts.Skipped,
		len(rep.Unmatched),
		clean,
	)
	if err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	return id, nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, timestamp, suite, pass, fail, xfail, upass, skipped, unmatched, clean
		 FROM runs ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Suite, &r.Pass, &r.Fail, &r.XFail, &r.UPass, &r.Skipped, &r.Unmatched, &r.Clean); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UPassStreak returns how many consecutive recent runs of a suite recorded
// at least one unexpected pass. A growing streak means the table is overdue
// for maintenance.
func (s *Store) UPassStreak(suite string) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	rows, err := s.db.Query(
		`SELECT upass FROM runs WHERE suite = ? ORDER BY timestamp DESC, rowid DESC LIMIT 50`, suite)
	if err != nil {
		return 0, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var upass int
		if err := rows.Scan(&upass); err != nil {
			return 0, fmt.Errorf("scanning run: %w", err)
		}
		if upass == 0 {
			break
		}
		streak++
	}
	return streak, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
