// Package meeting defines the normalized meeting model and the selection and
// classification rules that decide which meeting, if any, a pipeline run acts
// on.
package meeting

import (
	"strings"
	"time"
)

// Attendee is a person on the meeting invite. Resource calendar addresses
// (rooms, equipment) are filtered out during source normalization and never
// appear here.
type Attendee struct {
	// Email is the attendee's address, lowercased.
	Email string

	// DisplayName is the invite display name, falling back to the email
	// local part when the source omits it.
	DisplayName string

	// Self marks the operator's own invite entry.
	Self bool
}

// Domain returns the attendee's email domain, or "" if the address is
// malformed.
func (a Attendee) Domain() string {
	_, domain, ok := strings.Cut(a.Email, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(domain)
}

// AudioChannel describes one recorded audio channel of the meeting.
type AudioChannel struct {
	// ID is the channel identifier referenced by transcript segments.
	ID string

	// Source describes where the channel was captured, e.g. "microphone"
	// for the locally-captured input or "system" for remote audio.
	Source string
}

// Meeting is the normalized, immutable meeting record materialized from the
// metadata source on each discovery pass. A new pass supersedes the previous
// instance wholesale; nothing mutates a Meeting after normalization.
type Meeting struct {
	// ID is the opaque stable meeting identifier.
	ID string

	// Title is the meeting title.
	Title string

	// EndedAt is when the meeting ended.
	EndedAt time.Time

	// Attendees are the non-resource invitees.
	Attendees []Attendee

	// Channels are the recorded audio channels.
	Channels []AudioChannel

	// TranscriptReady and NotesReady are the source's readiness flags.
	// nil means the source did not report the flag, which is distinct from
	// an explicit false; an unknown flag does not suppress polling.
	TranscriptReady *bool
	NotesReady      *bool
}

// ChannelCount returns the number of distinct audio channel identifiers.
func (m *Meeting) ChannelCount() int {
	seen := make(map[string]struct{}, len(m.Channels))
	for _, c := range m.Channels {
		seen[c.ID] = struct{}{}
	}
	return len(seen)
}

// DocumentSet is the uniform in-memory view produced by source discovery.
type DocumentSet struct {
	// SchemaVersion is the version number of the source file that was read.
	SchemaVersion int

	// Meetings are the normalized, non-deleted meeting records.
	Meetings []Meeting
}
