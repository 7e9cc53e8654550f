// Package history persists transmission outcomes and daemon metadata.
// This is the daemon's only write path; schedules are never touched.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome classifies how a window ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeFailed         Outcome = "failed"
	OutcomeSkippedBusy    Outcome = "skipped_busy"
	OutcomeSkippedOverlap Outcome = "skipped_overlap"
	OutcomeSkippedMissed  Outcome = "skipped_missed"
)

// Record is one transmission cycle's result.
type Record struct {
	ID          string
	Set         string
	WindowKey   string
	FrequencyHz int64
	Mode        string
	PowerW      int
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     Outcome
	Detail      string
}

const lastRunKey = "last_run"

// Store is a SQLite-backed history store.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the history database. Use ":memory:" for an
// in-memory database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transmissions (
		id TEXT PRIMARY KEY,
		set_name TEXT NOT NULL,
		window_key TEXT NOT NULL,
		frequency_hz INTEGER NOT NULL,
		mode TEXT NOT NULL,
		power_w INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_started_at ON transmissions(started_at);
	CREATE INDEX IF NOT EXISTS idx_set_name ON transmissions(set_name);
	CREATE TABLE IF NOT EXISTS daemon_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores one transmission record.
func (s *Store) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transmissions
		 (id, set_name, window_key, frequency_hz, mode, power_w, started_at, ended_at, outcome, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Set, rec.WindowKey, rec.FrequencyHz, rec.Mode, rec.PowerW,
		rec.StartedAt.Unix(), rec.EndedAt.Unix(), string(rec.Outcome), rec.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert transmission record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, set_name, window_key, frequency_hz, mode, power_w, started_at, ended_at, outcome, detail
		 FROM transmissions ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transmissions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec                Record
			startedAt, endedAt int64
			outcome            string
			detail             sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Set, &rec.WindowKey, &rec.FrequencyHz, &rec.Mode,
			&rec.PowerW, &startedAt, &endedAt, &outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan transmission record: %w", err)
		}
		rec.StartedAt = time.Unix(startedAt, 0)
		rec.EndedAt = time.Unix(endedAt, 0)
		rec.Outcome = Outcome(outcome)
		rec.Detail = detail.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune removes records older than cutoff and returns the count
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM transmissions WHERE started_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune transmissions: %w", err)
	}
	return res.RowsAffected()
}

// SetLastRun records the daemon's last-run timestamp.
func (s *Store) SetLastRun(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daemon_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		lastRunKey, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set last run: %w", err)
	}
	return nil
}

// LastRun returns the stored last-run timestamp, or ok=false when the
// daemon has never run.
func (s *Store) LastRun(ctx context.Context) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM daemon_meta WHERE key = ?", lastRunKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last run: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse last run: %w", err)
	}
	return t, true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
