// Package source locates and normalizes the external metadata cache.
//
// The data source application writes versioned cache files (cache-v2.json,
// cache-v3.json, ...) whose payload may be stored either as a native JSON
// object or as a JSON-encoded string requiring a second decode pass. Both
// shapes decode here, exactly once, into the canonical meeting.DocumentSet
// that everything downstream consumes.
package source

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
)

// cacheFilePattern matches versioned cache files.
var cacheFilePattern = regexp.MustCompile(`^cache-v(\d+)\.json$`)

// resourceAddressSuffix identifies calendar resource (room/equipment)
// addresses, which are not people and are excluded from attendees.
const resourceAddressSuffix = "@resource.calendar.google.com"

// Discovery locates and parses the newest metadata source.
type Discovery struct {
	dir string
	log logging.Logger
}

// NewDiscovery creates a Discovery over the given source directory.
func NewDiscovery(dir string, log logging.Logger) *Discovery {
	return &Discovery{dir: dir, log: log}
}

// Discover enumerates candidate cache files, selects the highest schema
// version, and normalizes it. It fails with ErrSourceUnavailable when no
// candidate exists; for this pipeline that is a clean no-work exit, not a
// failure.
func (d *Discovery) Discover() (*meeting.DocumentSet, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("source directory %s: %w", d.dir, fuperrors.ErrSourceUnavailable)
		}
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	version := -1
	var path string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := cacheFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v > version {
			version = v
			path = filepath.Join(d.dir, e.Name())
		}
	}
	if version < 0 {
		return nil, fmt.Errorf("no cache file in %s: %w", d.dir, fuperrors.ErrSourceUnavailable)
	}

	d.log.Debug("selected metadata source", logging.F("path", path), logging.F("schema_version", version))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	set.SchemaVersion = version
	return set, nil
}

// envelope is the outer cache file shape. The payload under "cache" is the
// string-or-native tagged union.
type envelope struct {
	Cache json.RawMessage `json:"cache"`
}

// payload is the decoded cache payload.
type payload struct {
	State struct {
		Documents map[string]rawDocument `json:"documents"`
	} `json:"state"`
}

// rawDocument mirrors one source document. Optional fields are pointers so
// an explicit null stays distinguishable from an absent field.
type rawDocument struct {
	ID            string     `json:"id"`
	Title         *string    `json:"title"`
	CreatedAt     *string    `json:"created_at"`
	DeletedAt     *string    `json:"deleted_at"`
	CalendarEvent *rawEvent  `json:"google_calendar_event"`
	Audio         []rawAudio `json:"audio_channels"`

	TranscriptReady *bool `json:"transcript_ready"`
	NotesReady      *bool `json:"notes_ready"`
}

type rawEvent struct {
	Summary   string        `json:"summary"`
	Start     rawEventTime  `json:"start"`
	End       rawEventTime  `json:"end"`
	Attendees []rawAttendee `json:"attendees"`
}

type rawEventTime struct {
	DateTime string `json:"dateTime"`
}

type rawAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Self        bool   `json:"self"`
}

type rawAudio struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

// Parse decodes a cache file body into the canonical document set. This is
// the single place the string-or-native dual encoding is resolved.
func Parse(data []byte) (*meeting.DocumentSet, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if len(env.Cache) == 0 {
		return nil, fmt.Errorf("envelope has no cache payload")
	}

	inner := env.Cache
	// Double-encoded payload: the cache field holds a JSON string whose
	// contents are themselves JSON.
	if inner[0] == '"' {
		var s string
		if err := json.Unmarshal(inner, &s); err != nil {
			return nil, fmt.Errorf("decoding string payload: %w", err)
		}
		inner = []byte(s)
	}

	var p payload
	if err := json.Unmarshal(inner, &p); err != nil {
		return nil, fmt.Errorf("decoding cache payload: %w", err)
	}

	set := &meeting.DocumentSet{}
	for _, doc := range p.State.Documents {
		if doc.DeletedAt != nil {
			continue
		}
		m, ok := normalize(doc)
		if !ok {
			continue
		}
		set.Meetings = append(set.Meetings, m)
	}
	return set, nil
}

// normalize converts one raw document into a Meeting. Documents without an
// ID or any usable timestamp are dropped.
func normalize(doc rawDocument) (meeting.Meeting, bool) {
	if doc.ID == "" {
		return meeting.Meeting{}, false
	}

	endedAt, ok := documentEnd(doc)
	if !ok {
		return meeting.Meeting{}, false
	}

	m := meeting.Meeting{
		ID:              doc.ID,
		EndedAt:         endedAt,
		TranscriptReady: doc.TranscriptReady,
		NotesReady:      doc.NotesReady,
	}

	if doc.Title != nil && *doc.Title != "" {
		m.Title = *doc.Title
	} else if doc.CalendarEvent != nil && doc.CalendarEvent.Summary != "" {
		m.Title = doc.CalendarEvent.Summary
	} else {
		m.Title = "Untitled Meeting"
	}

	if doc.CalendarEvent != nil {
		for _, a := range doc.CalendarEvent.Attendees {
			email := strings.ToLower(strings.TrimSpace(a.Email))
			if email == "" {
				continue
			}
			if isResourceAddress(email) {
				continue
			}
			name := a.DisplayName
			if name == "" {
				name, _, _ = strings.Cut(email, "@")
			}
			m.Attendees = append(m.Attendees, meeting.Attendee{
				Email:       email,
				DisplayName: name,
				Self:        a.Self,
			})
		}
	}

	for _, ch := range doc.Audio {
		if ch.ID == "" {
			continue
		}
		m.Channels = append(m.Channels, meeting.AudioChannel{ID: ch.ID, Source: ch.Source})
	}

	return m, true
}

// documentEnd extracts the meeting end time: the calendar event end,
// falling back to the event start, then to created_at.
func documentEnd(doc rawDocument) (time.Time, bool) {
	if doc.CalendarEvent != nil {
		if t, err := parseTime(doc.CalendarEvent.End.DateTime); err == nil {
			return t, true
		}
		if t, err := parseTime(doc.CalendarEvent.Start.DateTime); err == nil {
			return t, true
		}
	}
	if doc.CreatedAt != nil {
		if t, err := parseTime(*doc.CreatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseTime parses an RFC 3339 timestamp, tolerating a trailing Z.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, s)
}

// isResourceAddress reports whether the address belongs to a calendar
// resource rather than a person.
func isResourceAddress(email string) bool {
	return strings.HasPrefix(email, "c_") && strings.HasSuffix(email, resourceAddressSuffix)
}
