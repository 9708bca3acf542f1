// Package transcript models fetched transcripts and resolves raw audio
// channel identifiers to semantic speaker roles.
package transcript

import (
	"fmt"
	"strings"
	"time"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
)

// Role is the semantic speaker role of a transcript segment.
type Role string

const (
	// RoleSelf is the operator's own speech (locally-captured channel).
	RoleSelf Role = "self"
	// RoleCounterpart is the other party's speech.
	RoleCounterpart Role = "counterpart"
	// RoleUnknown is a channel that could not be attributed. Only valid
	// when the channel count is not exactly two, which upstream filtering
	// prevents from reaching the labeler.
	RoleUnknown Role = "unknown"
)

// Segment is one chronological slice of raw transcript text. Segments are
// immutable once fetched.
type Segment struct {
	// ChannelID references the audio channel the segment was captured on.
	ChannelID string `json:"channel_id"`

	// Text is the raw transcript text. Content is treated as an opaque
	// labeled blob; no NLP happens here.
	Text string `json:"text"`

	// StartedAt orders segments chronologically.
	StartedAt time.Time `json:"started_at"`
}

// LabeledSegment is a Segment with its channel resolved to a role.
type LabeledSegment struct {
	Segment
	Role Role
}

// Labeled is the transcript with speaker roles resolved.
type Labeled struct {
	Segments []LabeledSegment
}

// Size returns the total transcript text length in bytes.
func (l *Labeled) Size() int {
	n := 0
	for _, s := range l.Segments {
		n += len(s.Text)
	}
	return n
}

// Render formats the labeled transcript as role-prefixed lines for the
// generation prompt.
func (l *Labeled) Render(selfName, counterpartName string) string {
	var b strings.Builder
	for _, s := range l.Segments {
		switch s.Role {
		case RoleSelf:
			b.WriteString(selfName)
		case RoleCounterpart:
			b.WriteString(counterpartName)
		default:
			b.WriteString("Unknown")
		}
		b.WriteString(": ")
		b.WriteString(s.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

// microphoneSource is the channel source designating locally-captured
// audio, which by convention belongs to the operator.
const microphoneSource = "microphone"

// Label resolves each segment's channel to a role using the meeting's
// channel metadata. Exactly two distinct channels are required; anything
// else fails with ErrAmbiguousChannels. The selector's speakerphone rule
// filters single-channel meetings before this stage, so hitting the error
// here indicates an upstream filtering bug, not a business condition.
func Label(m *meeting.Meeting, segments []Segment) (*Labeled, error) {
	if n := m.ChannelCount(); n != 2 {
		return nil, fmt.Errorf("meeting %s has %d distinct channels: %w",
			m.ID, n, fuperrors.ErrAmbiguousChannels)
	}

	roles := make(map[string]Role, 2)
	var selfAssigned bool
	for _, ch := range m.Channels {
		if _, seen := roles[ch.ID]; seen {
			continue
		}
		if !selfAssigned && strings.EqualFold(ch.Source, microphoneSource) {
			roles[ch.ID] = RoleSelf
			selfAssigned = true
		} else {
			roles[ch.ID] = RoleCounterpart
		}
	}

	// No microphone channel reported: fall back to the first channel as
	// self so two-channel recordings without source metadata still label.
	if !selfAssigned {
		roles[m.Channels[0].ID] = RoleSelf
	}

	labeled := &Labeled{Segments: make([]LabeledSegment, 0, len(segments))}
	for _, seg := range segments {
		role, ok := roles[seg.ChannelID]
		if !ok {
			role = RoleUnknown
		}
		labeled.Segments = append(labeled.Segments, LabeledSegment{Segment: seg, Role: role})
	}
	return labeled, nil
}
