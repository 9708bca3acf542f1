package draft

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
	"github.com/otherjamesbrown/followup-cli/pkg/transcript"
)

func testRequest() *Request {
	return &Request{
		Meeting: &meeting.Meeting{
			ID:      "m-1",
			Title:   "Quarterly Review",
			EndedAt: time.Date(2026, 8, 29, 15, 0, 0, 0, time.UTC),
		},
		To: []string{"client@other.com"},
		CC: []string{"colleague@co.com"},
		Transcript: &transcript.Labeled{Segments: []transcript.LabeledSegment{
			{Segment: transcript.Segment{Text: "Thanks for joining."}, Role: transcript.RoleSelf},
			{Segment: transcript.Segment{Text: "Happy to be here."}, Role: transcript.RoleCounterpart},
		}},
		Notes:          "Summary:\nDiscussed the rollout.",
		SenderName:     "Jamie",
		DefaultSubject: "re: our call today",
	}
}

const validBody = "Hi Alex,\n\nGreat speaking today. I will send the proposal by Friday. You mentioned reviewing it with your team next week. Looking forward to it.\n\nBest,\nJamie"

// generationServer returns a test server that always responds with the given
// model output.
func generationServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_ValidDraft(t *testing.T) {
	out, _ := json.Marshal(Draft{Subject: "re: our call today", Body: validBody})
	srv := generationServer(t, string(out))

	g := NewGenerator(srv.URL, "token", 5*time.Second)
	d, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "re: our call today", d.Subject)
	assert.Contains(t, d.Body, "proposal")
}

func TestGenerate_StripsCodeFences(t *testing.T) {
	out, _ := json.Marshal(Draft{Subject: "re: our call today", Body: validBody})
	srv := generationServer(t, "```json\n"+string(out)+"\n```")

	g := NewGenerator(srv.URL, "token", 5*time.Second)
	d, err := g.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "re: our call today", d.Subject)
}

func TestGenerate_Invalid(t *testing.T) {
	nineSentences := strings.TrimSpace(strings.Repeat("Another sentence here. ", 9))
	tooLong := strings.TrimSpace(strings.Repeat("Another sentence here. ", 20))
	tests := []struct {
		name string
		text string
	}{
		{"not json", "Sure! Here is your email."},
		{"empty subject", `{"subject": "", "body": "` + "Hi. Bye." + `"}`},
		{"empty body", `{"subject": "re: call", "body": "  "}`},
		{"one sentence", `{"subject": "re: call", "body": "Thanks."}`},
		{"three sentences", `{"subject": "re: call", "body": "Thanks. See notes. Bye."}`},
		{"nine sentences", `{"subject": "re: call", "body": "` + nineSentences + `"}`},
		{"too many sentences", `{"subject": "re: call", "body": "` + tooLong + `"}`},
		{"no terminal punctuation", `{"subject": "re: call", "body": "just a fragment with no ending"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := generationServer(t, tc.text)
			g := NewGenerator(srv.URL, "token", 5*time.Second)
			_, err := g.Generate(context.Background(), testRequest())
			require.Error(t, err)
			assert.True(t, fuperrors.IsGenerationFailed(err), "err = %v", err)
		})
	}
}

func TestGenerate_EmptyOutput(t *testing.T) {
	srv := generationServer(t, "   ")
	g := NewGenerator(srv.URL, "token", 5*time.Second)
	_, err := g.Generate(context.Background(), testRequest())
	assert.True(t, fuperrors.IsGenerationFailed(err))
}

func TestGenerate_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGenerator(srv.URL, "token", 5*time.Second)
	_, err := g.Generate(context.Background(), testRequest())
	assert.True(t, fuperrors.IsCollaboratorUnavailable(err))
}

func TestCountSentences(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{"One. Two. Three.", 3},
		{"Really? Yes! Done.", 3},
		{"Version 2.5 shipped today.", 1},
		{"Line one.\nLine two.", 2},
		{"no punctuation", 0},
	}
	for _, tc := range tests {
		if got := countSentences(tc.body); got != tc.want {
			t.Errorf("countSentences(%q) = %d, want %d", tc.body, got, tc.want)
		}
	}
}

// TestBuildPrompt_SubjectRule verifies the adaptive subject: the exact
// default with no history, a thread reference with history.
func TestBuildPrompt_SubjectRule(t *testing.T) {
	req := testRequest()
	p := buildPrompt(req)
	assert.Contains(t, p, `use exactly "re: our call today"`)
	assert.NotContains(t, p, "PRIOR CORRESPONDENCE")

	req.Contexts = []mailstore.ContactContext{{
		Attendee: meeting.Attendee{Email: "client@other.com"},
		Messages: []mailstore.Message{{
			Subject: "Project kickoff",
			Snippet: "Excited to get started",
			SentAt:  time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		}},
	}}
	p = buildPrompt(req)
	assert.Contains(t, p, "PRIOR CORRESPONDENCE")
	assert.Contains(t, p, "Project kickoff")
	assert.Contains(t, p, "references the prior thread")
	assert.NotContains(t, p, "use exactly")
}

// TestBuildPrompt_Content verifies the prompt carries the transcript, notes,
// recipients, and sender identity.
func TestBuildPrompt_Content(t *testing.T) {
	p := buildPrompt(testRequest())
	assert.Contains(t, p, "You are Jamie.")
	assert.Contains(t, p, "Quarterly Review")
	assert.Contains(t, p, "client@other.com")
	assert.Contains(t, p, "colleague@co.com")
	assert.Contains(t, p, "Jamie: Thanks for joining.")
	assert.Contains(t, p, "Counterpart: Happy to be here.")
	assert.Contains(t, p, "Discussed the rollout.")
}

// TestBuildPrompt_NotesCapped verifies oversized notes are truncated before
// prompting.
func TestBuildPrompt_NotesCapped(t *testing.T) {
	req := testRequest()
	req.Notes = strings.Repeat("n", maxPromptNotes+500)
	p := buildPrompt(req)
	assert.Less(t, len(p), maxPromptNotes+5000)
}
