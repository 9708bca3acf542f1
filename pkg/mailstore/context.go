package mailstore

import (
	"context"
	"fmt"
	"time"

	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
)

// ContactContext is the prior correspondence gathered for one external
// attendee. Empty Messages means a new contact, which is a valid state.
type ContactContext struct {
	Attendee meeting.Attendee
	Messages []Message
}

// Aggregator collects prior correspondence with external participants to
// enrich generation context.
type Aggregator struct {
	client   *Client
	lookback time.Duration
	maxMsgs  int
	log      logging.Logger
}

// NewAggregator creates a context aggregator over the mail-store client.
func NewAggregator(client *Client, lookback time.Duration, maxMsgs int, log logging.Logger) *Aggregator {
	return &Aggregator{client: client, lookback: lookback, maxMsgs: maxMsgs, log: log}
}

// Gather fetches prior message history for each external attendee, newest
// first, within the lookback window and per-contact cap. A contact with no
// history contributes an empty context; a collaborator failure aborts the
// whole gather so the meeting is not drafted on partial context silently.
func (a *Aggregator) Gather(ctx context.Context, contacts []meeting.Attendee) ([]ContactContext, error) {
	since := time.Now().Add(-a.lookback)
	out := make([]ContactContext, 0, len(contacts))
	for _, contact := range contacts {
		msgs, err := a.client.ListThread(ctx, contact.Email, since, a.maxMsgs)
		if err != nil {
			return nil, fmt.Errorf("gathering context for %s: %w", contact.Email, err)
		}
		a.log.Debug("gathered prior correspondence",
			logging.F("contact", contact.Email),
			logging.F("messages", len(msgs)))
		out = append(out, ContactContext{Attendee: contact, Messages: msgs})
	}
	return out, nil
}

// HasHistory reports whether any contact has prior correspondence. The
// draft subject references prior context only when this is true.
func HasHistory(contexts []ContactContext) bool {
	for _, c := range contexts {
		if len(c.Messages) > 0 {
			return true
		}
	}
	return false
}
