// Package status records run outcomes for external observability: an
// append-only structured event log, a single atomically-overwritten status
// snapshot, and a prometheus textfile with run counters. The status-viewing
// application is a passive reader of the snapshot; no pipeline logic lives
// on that side.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of one pipeline run.
type Outcome string

const (
	OutcomeDrafted          Outcome = "drafted"
	OutcomeDeferred         Outcome = "deferred"
	OutcomeInternalSkip     Outcome = "internal-skip"
	OutcomeSpeakerphoneSkip Outcome = "speakerphone-skip"
	OutcomeAlreadyProcessed Outcome = "already-processed"
	OutcomeNoMeetings       Outcome = "no-meetings"
	OutcomeNoSource         Outcome = "no-source"
	OutcomeLockContention   Outcome = "lock-contention"
	OutcomeAbandoned        Outcome = "abandoned"
	OutcomeFailed           Outcome = "failed"
)

// DraftResult is the observational record of a created draft.
type DraftResult struct {
	MeetingID      string        `json:"meeting_id"`
	DraftID        string        `json:"draft_id"`
	Duration       time.Duration `json:"duration"`
	TranscriptSize int           `json:"transcript_size"`
}

// RunEvent is one record in the append-only event log.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"timestamp"`
	Outcome   Outcome       `json:"outcome"`
	MeetingID string        `json:"meeting_id,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Processed int           `json:"processed"`
	Deferred  int           `json:"deferred"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Draft     *DraftResult  `json:"draft,omitempty"`
}

// Health holds per-collaborator availability indicators.
type Health struct {
	SourcePresent      bool `json:"source_present"`
	NotesCredential    bool `json:"notes_credential"`
	MailCredential     bool `json:"mail_credential"`
	GenerateCredential bool `json:"generate_credential"`
	StateWritable      bool `json:"state_writable"`
}

// Snapshot is the single overwritten status file. History lives in the
// event log, not here.
type Snapshot struct {
	LastRun   time.Time `json:"last_run"`
	Outcome   Outcome   `json:"outcome"`
	MeetingID string    `json:"meeting_id,omitempty"`
	Processed int       `json:"processed"`
	Deferred  int       `json:"deferred"`
	Skipped   int       `json:"skipped"`
	Health    Health    `json:"health"`
}

// File names inside the state directory.
const (
	EventLogFile = "events.jsonl"
	SnapshotFile = "status.json"
	MetricsFile  = "metrics.prom"
)

// Recorder appends run events and maintains the status snapshot.
type Recorder struct {
	stateDir string
}

// NewRecorder creates a Recorder writing into the given state directory.
func NewRecorder(stateDir string) *Recorder {
	return &Recorder{stateDir: stateDir}
}

// NewRunID returns a fresh identifier stamped on the run's event.
func NewRunID() string {
	return uuid.NewString()
}

// Record appends the event to the log, overwrites the snapshot, and updates
// the metrics textfile. Recording must not fail the run it describes; the
// first error is returned for logging but callers treat it as advisory.
func (r *Recorder) Record(event RunEvent, health Health) error {
	if err := os.MkdirAll(r.stateDir, 0o700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	firstErr := r.appendEvent(event)

	snap := Snapshot{
		LastRun:   event.Timestamp,
		Outcome:   event.Outcome,
		MeetingID: event.MeetingID,
		Processed: event.Processed,
		Deferred:  event.Deferred,
		Skipped:   event.Skipped,
		Health:    health,
	}
	if err := r.writeSnapshot(snap); err != nil && firstErr == nil {
		firstErr = err
	}

	// A fresh registry per event keeps the textfile merge the single
	// accumulation point; prior run totals come from the file, not memory.
	metrics := NewMetrics()
	metrics.ObserveRun(event)
	if err := metrics.WriteTextfile(filepath.Join(r.stateDir, MetricsFile)); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// appendEvent appends one JSON line to the event log.
func (r *Recorder) appendEvent(event RunEvent) error {
	f, err := os.OpenFile(filepath.Join(r.stateDir, EventLogFile),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("appending event: %w", err)
	}
	return nil
}

// writeSnapshot atomically replaces the snapshot: write to a temp file in
// the same directory, then rename. A reader never observes a partial write.
func (r *Recorder) writeSnapshot(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path := filepath.Join(r.stateDir, SnapshotFile)
	tmp, err := os.CreateTemp(r.stateDir, SnapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads the current snapshot. A missing snapshot returns nil
// without error: the pipeline simply has not run yet.
func ReadSnapshot(stateDir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, SnapshotFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}
