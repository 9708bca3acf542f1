package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// TestJSONOutput verifies JSON-formatted entries carry the component, level,
// message, and structured fields.
func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelDebug,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.Info("run complete",
		F("outcome", "drafted"),
		F("attempts", 3),
		F("duration", 2*time.Second),
		Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "test" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["message"] != "run complete" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["outcome"] != "drafted" {
		t.Errorf("outcome = %v", entry["outcome"])
	}
	if entry["attempts"] != float64(3) {
		t.Errorf("attempts = %v", entry["attempts"])
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v", entry["error"])
	}
}

// TestWith verifies attached fields appear on subsequent entries.
func TestWith(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelInfo,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.With(F("run_id", "abc-123")).Info("triggered")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["run_id"] != "abc-123" {
		t.Errorf("run_id = %v, want abc-123", entry["run_id"])
	}
}

// TestLevelFiltering verifies entries below the configured level are dropped.
func TestLevelFiltering(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	log := NewLogger(&Config{
		Level:      LevelWarn,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
	})

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "kept") {
		t.Errorf("output = %q, want only the warn entry", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   Level
		want zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tc := range tests {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestFileSink verifies entries land in the file with level and fields, and
// appends survive reopening.
func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "followup.log")

	sink, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	sink.Write(Entry{
		Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
		Level:     "info",
		Message:   "draft created",
		Fields:    []Field{{Key: "draft_id", Value: "d-1"}},
	})
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	sink, err = NewFileSink(path)
	if err != nil {
		t.Fatal(err)
	}
	sink.Write(Entry{Level: "warn", Message: "second run"})
	sink.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "[INFO] draft created draft_id=d-1") {
		t.Errorf("log file missing first entry:\n%s", text)
	}
	if !strings.Contains(text, "[WARN] second run") {
		t.Errorf("log file missing appended entry:\n%s", text)
	}
}

// TestSinkReceivesEntries verifies the logger forwards entries to sinks.
func TestSinkReceivesEntries(t *testing.T) {
	var buf bytes.Buffer
	sink := &captureSink{}
	log := NewLogger(&Config{
		Level:      LevelInfo,
		Component:  "test",
		JSONFormat: true,
		Output:     &buf,
		Sinks:      []Sink{sink},
	})

	log.Info("hello", F("k", "v"))

	if len(sink.entries) != 1 {
		t.Fatalf("sink received %d entries, want 1", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Level != "info" || e.Message != "hello" || e.Component != "test" {
		t.Errorf("entry = %+v", e)
	}
}

type captureSink struct {
	entries []Entry
}

func (c *captureSink) Write(entry Entry) { c.entries = append(c.entries, entry) }
func (c *captureSink) Close() error      { return nil }

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Debug("x")
	log.Info("x")
	log.Warn("x")
	log.Error("x")
	if log.With(F("k", "v")) == nil {
		t.Error("With returned nil")
	}
}
