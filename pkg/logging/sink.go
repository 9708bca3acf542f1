package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry represents a log entry delivered to a sink.
type Entry struct {
	Timestamp time.Time
	Level     string
	Component string
	Message   string
	Fields    []Field
}

// Sink is an interface for components that receive log entries.
type Sink interface {
	// Write persists a log entry.
	Write(entry Entry)
	// Close releases the sink's resources.
	Close() error
}

// FileSink appends formatted log lines to a file. Writes are synchronous;
// a pipeline run is short-lived and must not lose its final lines to an
// unflushed buffer when the process exits.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) the log file at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return &FileSink{file: f}, nil
}

// Write appends one formatted line per entry.
func (s *FileSink) Write(entry Entry) {
	var b strings.Builder
	b.WriteString(entry.Timestamp.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(entry.Level))
	b.WriteString("] ")
	b.WriteString(entry.Message)
	for _, f := range entry.Fields {
		fmt.Fprintf(&b, " %s=%v", f.Key, f.Value)
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	// A failed log write must never fail the run.
	_, _ = s.file.WriteString(b.String())
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
