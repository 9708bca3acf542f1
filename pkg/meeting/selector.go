package meeting

import (
	"sort"
	"strings"
	"time"
)

// Classification is the terminal category the selector assigns to a meeting.
type Classification string

const (
	// ClassActionable marks a meeting eligible for drafting.
	ClassActionable Classification = "actionable"

	// ClassInternalSkip marks a meeting with no external participants.
	// Terminal; never retried.
	ClassInternalSkip Classification = "internal-skip"

	// ClassSpeakerphoneSkip marks a meeting with a single distinct audio
	// channel, where speaker attribution is impossible. Terminal.
	ClassSpeakerphoneSkip Classification = "speakerphone-skip"
)

// SelectorConfig holds the selection and classification rules.
type SelectorConfig struct {
	// InternalDomains is the internal email domain set.
	InternalDomains []string

	// SelfAddress is the operator's address, excluded from recipients.
	SelfAddress string

	// LookbackWindow is the maximum age of an eligible meeting, measured
	// from now to its end time.
	LookbackWindow time.Duration
}

// Selector applies the recency, audience, and audio-channel rules.
type Selector struct {
	cfg SelectorConfig
}

// NewSelector creates a Selector with the given rules.
func NewSelector(cfg SelectorConfig) *Selector {
	return &Selector{cfg: cfg}
}

// Select returns the eligible meetings from the document set ordered
// most-recently-ended first. Eligible means the meeting ended within the
// lookback window and before now; older meetings are ignored outright, and
// meetings that have not ended yet are not considered. The caller processes
// at most the first meeting per run; the rest wait for later triggers.
func (s *Selector) Select(set *DocumentSet, now time.Time) []Meeting {
	cutoff := now.Add(-s.cfg.LookbackWindow)
	var eligible []Meeting
	for _, m := range set.Meetings {
		if m.EndedAt.Before(cutoff) || m.EndedAt.After(now) {
			continue
		}
		eligible = append(eligible, m)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].EndedAt.After(eligible[j].EndedAt)
	})
	return eligible
}

// Classify applies the rules in order: internal-only check, then
// audio-channel check, then actionable.
func (s *Selector) Classify(m *Meeting) Classification {
	if !s.hasExternalAttendee(m) {
		return ClassInternalSkip
	}
	if m.ChannelCount() == 1 {
		return ClassSpeakerphoneSkip
	}
	// A meeting where no external attendee has a deliverable address has
	// nobody to send to; treat it like an internal meeting.
	to, _ := s.Recipients(m)
	if len(to) == 0 {
		return ClassInternalSkip
	}
	return ClassActionable
}

// hasExternalAttendee reports whether any attendee's domain falls outside
// the internal-domain set.
func (s *Selector) hasExternalAttendee(m *Meeting) bool {
	for _, a := range m.Attendees {
		if a.Email == "" {
			continue
		}
		if !s.isInternal(a.Domain()) {
			return true
		}
	}
	return false
}

// isInternal reports domain membership in the internal set.
func (s *Selector) isInternal(domain string) bool {
	for _, d := range s.cfg.InternalDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

// Recipients computes the draft recipients: To = external attendees,
// CC = internal attendees minus self.
func (s *Selector) Recipients(m *Meeting) (to, cc []string) {
	self := strings.ToLower(s.cfg.SelfAddress)
	for _, a := range m.Attendees {
		email := strings.ToLower(strings.TrimSpace(a.Email))
		if email == "" || email == self {
			continue
		}
		if s.isInternal(a.Domain()) {
			cc = append(cc, email)
		} else {
			to = append(to, email)
		}
	}
	return to, cc
}

// ExternalAttendees returns the attendees outside the internal-domain set.
func (s *Selector) ExternalAttendees(m *Meeting) []Attendee {
	var out []Attendee
	for _, a := range m.Attendees {
		if a.Email != "" && !s.isInternal(a.Domain()) {
			out = append(out, a)
		}
	}
	return out
}
