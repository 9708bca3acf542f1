// Package draft turns a meeting's assembled context into a validated
// follow-up email draft via the external text-generation collaborator.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
	"github.com/otherjamesbrown/followup-cli/pkg/transcript"
)

// Draft is the generated email content.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Request carries everything the generator combines into one generation
// call.
type Request struct {
	Meeting    *meeting.Meeting
	To         []string
	CC         []string
	Transcript *transcript.Labeled
	Notes      string
	Contexts   []mailstore.ContactContext
	SenderName string

	// DefaultSubject is used verbatim when no prior correspondence exists.
	DefaultSubject string
}

// Body length bounds enforced on the generated draft, matching what the
// prompt asks for. Greeting and sign-off lines end with commas, so they do
// not count toward the sentence total.
const (
	minBodySentences = 4
	maxBodySentences = 8
	maxPromptNotes   = 20000
)

// Generator invokes the text-generation collaborator under the fixed
// structural prompt contract and validates its output.
type Generator struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewGenerator creates a Generator for the generation API.
func NewGenerator(baseURL, token string, timeout time.Duration) *Generator {
	return &Generator{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate builds the prompt, calls the collaborator, and validates the
// response. Collaborator errors and malformed or out-of-bounds output fail
// with ErrGenerationFailed; the failure is transient for the run and is not
// auto-retried within it.
func (g *Generator) Generate(ctx context.Context, req *Request) (*Draft, error) {
	prompt := buildPrompt(req)

	text, err := g.call(ctx, prompt)
	if err != nil {
		return nil, err
	}

	d, err := parseDraft(text)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, fuperrors.ErrGenerationFailed)
	}
	if err := validateDraft(d); err != nil {
		return nil, fmt.Errorf("%v: %w", err, fuperrors.ErrGenerationFailed)
	}
	return d, nil
}

// call sends the prompt to the generation API.
func (g *Generator) call(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generation API: %v: %w", err, fuperrors.ErrCollaboratorUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("generation API: status %d: %w", resp.StatusCode, fuperrors.ErrCollaboratorUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation API: unexpected status %d: %w", resp.StatusCode, fuperrors.ErrGenerationFailed)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %v: %w", err, fuperrors.ErrCollaboratorUnavailable)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decoding response: %v: %w", err, fuperrors.ErrGenerationFailed)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("empty generation output: %w", fuperrors.ErrGenerationFailed)
	}
	return out.Text, nil
}

// parseDraft decodes the model's JSON response, stripping markdown code
// fences the model sometimes wraps around it.
func parseDraft(text string) (*Draft, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if _, rest, ok := strings.Cut(text, "\n"); ok {
			text = rest
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var d Draft
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("response is not a subject/body object: %w", err)
	}
	return &d, nil
}

// validateDraft enforces the output contract bounds.
func validateDraft(d *Draft) error {
	if strings.TrimSpace(d.Subject) == "" {
		return fmt.Errorf("draft has empty subject")
	}
	if strings.TrimSpace(d.Body) == "" {
		return fmt.Errorf("draft has empty body")
	}
	n := countSentences(d.Body)
	if n < minBodySentences || n > maxBodySentences {
		return fmt.Errorf("draft body has %d sentences, want %d-%d", n, minBodySentences, maxBodySentences)
	}
	return nil
}

// countSentences counts terminal punctuation marks followed by whitespace
// or end of text. Good enough for contract enforcement on prose.
func countSentences(body string) int {
	count := 0
	runes := []rune(body)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
			count++
		}
	}
	return count
}
