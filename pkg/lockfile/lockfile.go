// Package lockfile provides the pipeline's mutual-exclusion primitive.
// A marker file in the state directory records the owning process identity
// and acquisition time; a second trigger arriving mid-run must exit
// immediately without side effects rather than queue.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
)

// marker is the on-disk lock record.
type marker struct {
	PID        int       `yaml:"pid"`
	AcquiredAt time.Time `yaml:"acquired_at"`
}

// Lock is a file-based lock preventing concurrent pipeline runs.
type Lock struct {
	path   string
	log    logging.Logger
	held   bool
	isLive func(pid int) bool
}

// New creates a Lock at the given marker path.
func New(path string, log logging.Logger) *Lock {
	return &Lock{
		path:   path,
		log:    log,
		isLive: processAlive,
	}
}

// Acquire creates the lock marker. It fails with ErrAlreadyRunning if the
// marker exists and its recorded process is still alive. A marker whose
// process is dead is treated as abandoned by a crashed prior run: it is
// removed with a warning and acquisition proceeds.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := l.tryCreate()
		if err == nil {
			l.held = true
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("creating lock marker: %w", err)
		}

		m, readErr := l.readMarker()
		if readErr == nil && m.PID > 0 && l.isLive(m.PID) {
			return fmt.Errorf("pid %d holds %s: %w", m.PID, l.path, fuperrors.ErrAlreadyRunning)
		}

		// Unreadable marker or dead owner: reclaim and retry once.
		if readErr != nil {
			l.log.Warn("removing unreadable lock marker", logging.F("path", l.path), logging.Err(readErr))
		} else {
			l.log.Warn("reclaiming stale lock from dead process",
				logging.F("path", l.path),
				logging.F("pid", m.PID),
				logging.F("acquired_at", m.AcquiredAt))
		}
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return fmt.Errorf("removing stale lock marker: %w", rmErr)
		}
	}

	return fuperrors.ErrAlreadyRunning
}

// tryCreate atomically creates the marker file for this process.
func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := yaml.Marshal(marker{
		PID:        os.Getpid(),
		AcquiredAt: time.Now().UTC(),
	})
	if err != nil {
		os.Remove(l.path)
		return fmt.Errorf("encoding lock marker: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("writing lock marker: %w", err)
	}
	return nil
}

// readMarker parses the existing marker file.
func (l *Lock) readMarker() (*marker, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, err
	}
	var m marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing lock marker: %w", err)
	}
	return &m, nil
}

// Release removes the marker unconditionally. It is safe to call on every
// exit path, including when Acquire failed.
func (l *Lock) Release() {
	if !l.held {
		return
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		l.log.Warn("failed to remove lock marker", logging.F("path", l.path), logging.Err(err))
	}
}

// processAlive reports whether a process with the given PID exists.
// Signal 0 performs the existence check without delivering a signal;
// EPERM still means the process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
