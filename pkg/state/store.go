// Package state provides the durable dedup-and-deferral record store.
//
// The store is the single source of truth for which meetings have already
// produced a draft and which are parked waiting for content. It is a local,
// single-writer SQLite database guarded by the pipeline lock; a missing or
// corrupt database is treated as empty, failing open toward re-processing
// rather than closed toward silent data loss.
//
// Draft creation is not atomic with the processed commit: if the process
// crashes after the mail store accepts a draft but before RecordProcessed
// lands, the next run creates one duplicate draft. That window is accepted
// and bounded to at most one extra draft per crash.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/otherjamesbrown/followup-cli/pkg/logging"
)

// Status is the lifecycle state of a meeting in the store.
type Status string

const (
	// StatusUnseen means the meeting has no record.
	StatusUnseen Status = "unseen"
	// StatusDeferred means the meeting is parked pending content readiness.
	StatusDeferred Status = "deferred"
	// StatusProcessed means a draft was created (or the meeting was
	// terminally skipped or abandoned). Processed is terminal.
	StatusProcessed Status = "processed"
)

// Record is one processing record. A meeting ID has at most one record.
type Record struct {
	MeetingID  string
	Status     Status
	FirstSeen  time.Time
	Attempts   int
	LastReason string
	UpdatedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS processing_records (
	meeting_id  TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	first_seen  TIMESTAMP NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	last_reason TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMP NOT NULL
);
`

// Store is the SQLite-backed processing record store.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// Open opens (creating if needed) the store at the given path. A database
// that cannot be opened or migrated is discarded and recreated empty.
func Open(path string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := open(path)
	if err != nil {
		log.Warn("state database unusable, recreating empty",
			logging.F("path", path), logging.Err(err))
		if db != nil {
			db.Close()
		}
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("removing corrupt state database: %w", rmErr)
		}
		db, err = open(path)
		if err != nil {
			return nil, fmt.Errorf("recreating state database: %w", err)
		}
	}

	return &Store{db: db, log: log}, nil
}

// open connects and applies the schema.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	// One writer at a time; the pipeline lock already guarantees it, and a
	// single connection keeps SQLite locking out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		return db, fmt.Errorf("applying schema: %w", err)
	}
	return db, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the status for a meeting ID; unseen when no record exists.
func (s *Store) Lookup(ctx context.Context, meetingID string) (Status, error) {
	var status Status
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM processing_records WHERE meeting_id = ?`, meetingID).
		Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusUnseen, nil
	}
	if err != nil {
		return StatusUnseen, fmt.Errorf("looking up %s: %w", meetingID, err)
	}
	return status, nil
}

// Get returns the full record for a meeting ID, or nil when unseen.
func (s *Store) Get(ctx context.Context, meetingID string) (*Record, error) {
	var r Record
	err := s.db.QueryRowContext(ctx,
		`SELECT meeting_id, status, first_seen, attempts, last_reason, updated_at
		 FROM processing_records WHERE meeting_id = ?`, meetingID).
		Scan(&r.MeetingID, &r.Status, &r.FirstSeen, &r.Attempts, &r.LastReason, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading record %s: %w", meetingID, err)
	}
	return &r, nil
}

// RecordDeferred upserts a deferred record, incrementing the attempt count
// and updating the deferral reason. A processed record is terminal and is
// never downgraded; deferring an already-processed meeting is a no-op.
func (s *Store) RecordDeferred(ctx context.Context, meetingID, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_records (meeting_id, status, first_seen, attempts, last_reason, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET
			attempts    = attempts + 1,
			last_reason = excluded.last_reason,
			updated_at  = excluded.updated_at
		WHERE status != ?`,
		meetingID, StatusDeferred, now, reason, now, StatusProcessed)
	if err != nil {
		return fmt.Errorf("recording deferral for %s: %w", meetingID, err)
	}
	return nil
}

// RecordProcessed marks a meeting processed with the given reason
// ("drafted", "internal-skip", "speakerphone-skip", "abandoned").
// The transition deferred -> processed is the only legal status change;
// processed is terminal.
func (s *Store) RecordProcessed(ctx context.Context, meetingID, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_records (meeting_id, status, first_seen, attempts, last_reason, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(meeting_id) DO UPDATE SET
			status      = excluded.status,
			last_reason = excluded.last_reason,
			updated_at  = excluded.updated_at`,
		meetingID, StatusProcessed, now, reason, now)
	if err != nil {
		return fmt.Errorf("recording processed for %s: %w", meetingID, err)
	}
	return nil
}

// ListDeferred returns the deferred records, oldest first.
func (s *Store) ListDeferred(ctx context.Context) ([]Record, error) {
	return s.list(ctx,
		`SELECT meeting_id, status, first_seen, attempts, last_reason, updated_at
		 FROM processing_records WHERE status = ? ORDER BY first_seen`, StatusDeferred)
}

// List returns every record, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.list(ctx,
		`SELECT meeting_id, status, first_seen, attempts, last_reason, updated_at
		 FROM processing_records ORDER BY updated_at DESC`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.MeetingID, &r.Status, &r.FirstSeen, &r.Attempts, &r.LastReason, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clear removes every record. Used by "followup state clear".
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM processing_records`); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}
	return nil
}
