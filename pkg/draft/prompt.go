package draft

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
)

// buildPrompt assembles the generation request under the fixed structural
// contract: tight length bound, no restatement of shared knowledge, at most
// two action items, nothing fabricated beyond the transcript and notes,
// future tense for uncommitted work and past tense for completed work, and
// an adaptive subject line.
func buildPrompt(req *Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s. You just got off a call and are writing a follow-up email.\n\n", req.SenderName)

	b.WriteString("MEETING DETAILS:\n")
	fmt.Fprintf(&b, "- Title: %s\n", req.Meeting.Title)
	fmt.Fprintf(&b, "- Ended: %s\n", req.Meeting.EndedAt.Format("January 2, 2006 15:04 MST"))
	fmt.Fprintf(&b, "- To (external): %s\n", strings.Join(req.To, ", "))
	fmt.Fprintf(&b, "- CC (internal): %s\n\n", strings.Join(req.CC, ", "))

	b.WriteString("TRANSCRIPT:\n")
	b.WriteString(req.Transcript.Render(req.SenderName, "Counterpart"))
	b.WriteString("\n")

	notes := req.Notes
	if len(notes) > maxPromptNotes {
		notes = notes[:maxPromptNotes]
	}
	b.WriteString("MEETING NOTES:\n")
	b.WriteString(notes)
	b.WriteString("\n\n")

	writePriorContext(&b, req.Contexts)

	b.WriteString("INSTRUCTIONS:\n")
	b.WriteString("Draft a follow-up email from the transcript and notes.\n\n")
	b.WriteString("Length: the entire body must be 4-8 sentences. Cut aggressively; a great follow-up is a tight note, not a memo.\n")
	b.WriteString("Recap: one sentence at most. Reference what was agreed, do not re-explain it; both parties were on the call. Never restate content both sides already know.\n")
	b.WriteString("Commitments: include only the 1-2 next steps that actually need writing down, woven into prose, attributed to whoever actually took them in the transcript.\n")
	b.WriteString("Accuracy: reference only things said in the transcript or notes. Never invent commitments, deliverables, resources, or statistics.\n")
	b.WriteString("Tense: future tense for work not yet committed or completed, past tense for work already done.\n")

	if mailstore.HasHistory(req.Contexts) {
		b.WriteString("Subject: this is an ongoing relationship; write a subject that references the prior thread context above.\n")
	} else {
		fmt.Fprintf(&b, "Subject: use exactly %q.\n", req.DefaultSubject)
	}

	fmt.Fprintf(&b, "Open with \"Hi [first name],\" on its own line. Sign off with \"Best,\" then %q.\n\n", req.SenderName)
	fmt.Fprintf(&b, "Respond with ONLY a JSON object (no markdown, no backticks), using \\n for line breaks:\n")
	fmt.Fprintf(&b, `{"subject": "...", "body": "Hi [name],\n\n...\n\nBest,\n%s"}`, req.SenderName)

	return b.String()
}

// writePriorContext renders the aggregated correspondence, newest first,
// one section per contact. Contacts without history are listed as new so
// the model adapts its opening.
func writePriorContext(b *strings.Builder, contexts []mailstore.ContactContext) {
	if len(contexts) == 0 {
		return
	}
	b.WriteString("PRIOR CORRESPONDENCE:\n")
	for _, c := range contexts {
		if len(c.Messages) == 0 {
			fmt.Fprintf(b, "- %s: no prior correspondence (new contact)\n", c.Attendee.Email)
			continue
		}
		fmt.Fprintf(b, "- %s:\n", c.Attendee.Email)
		for _, m := range c.Messages {
			fmt.Fprintf(b, "  [%s] %s: %s\n", m.SentAt.Format("2006-01-02"), m.Subject, m.Snippet)
		}
	}
	b.WriteString("\n")
}
