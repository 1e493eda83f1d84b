// Package history persists build run outcomes in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildwrap/internal/classify"
	"git.home.luguber.info/inful/buildwrap/internal/report"
)

// Entry is one recorded build run.
type Entry struct {
	ID        int64
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	Errors    int
	Warnings  int
	Command   string
}

// Store is a SQLite-backed run log.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the run database.
// Use ":memory:" for an in-memory database in tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		exit_code INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		warnings INTEGER NOT NULL,
		command TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts a finished run. startedAt is the wall-clock start of the
// run; command is the wrapped executable name.
func (s *Store) Record(ctx context.Context, res *report.Result, startedAt time.Time, command string) error {
	var errs, warns int
	for _, cc := range classify.Tally(res.Matches) {
		switch cc.Category {
		case "error":
			errs = cc.Count
		case "warning":
			warns = cc.Count
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at, duration_ms, exit_code, errors, warnings, command) VALUES (?, ?, ?, ?, ?, ?, ?)",
		res.RunID, startedAt.Unix(), res.Duration.Milliseconds(), res.ExitCode, errs, warns, command,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, started_at, duration_ms, exit_code, errors, warnings, command FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var startedUnix, durationMS int64
		if err := rows.Scan(&e.ID, &e.RunID, &startedUnix, &durationMS, &e.ExitCode, &e.Errors, &e.Warnings, &e.Command); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		e.StartedAt = time.Unix(startedUnix, 0)
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
