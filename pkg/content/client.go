// Package content retrieves transcript and generated-notes content for a
// meeting from the external data source, tolerating the source's
// asynchronous processing lag with bounded readiness polling.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/transcript"
)

// RetryPolicy bounds readiness polling within a single run. Polling sleeps
// Interval between attempts and gives up once MaxWait of wall-clock time has
// elapsed, after which the meeting is deferred to the next trigger.
type RetryPolicy struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// Clock abstracts time for the polling loop so tests can run it against a
// fake clock.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until the context is cancelled.
	Sleep(ctx context.Context, d time.Duration) error
}

// realClock is the production Clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NewRealClock returns the wall-clock Clock.
func NewRealClock() Clock { return realClock{} }

// Content is the fetched meeting content.
type Content struct {
	// Notes is the flattened generated-notes text.
	Notes string

	// Segments is the chronological raw transcript.
	Segments []transcript.Segment
}

// Fetcher is the HTTP client for the content retrieval API.
type Fetcher struct {
	baseURL       string
	token         string
	httpClient    *http.Client
	policy        RetryPolicy
	minNotesChars int
	clock         Clock
	log           logging.Logger
}

// Config configures a Fetcher.
type Config struct {
	BaseURL       string
	Token         string
	Timeout       time.Duration
	Policy        RetryPolicy
	MinNotesChars int
	Clock         Clock
	Logger        logging.Logger
}

// NewFetcher creates a Fetcher for the content retrieval API.
func NewFetcher(cfg Config) *Fetcher {
	clock := cfg.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Fetcher{
		baseURL:       cfg.BaseURL,
		token:         cfg.Token,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		policy:        cfg.Policy,
		minNotesChars: cfg.MinNotesChars,
		clock:         clock,
		log:           log,
	}
}

// Fetch polls the data source until both transcript and notes are ready, up
// to the retry policy's ceiling, then makes one final attempt. It returns
// ErrNotReady when the content never became ready within the budget - the
// caller defers the meeting and the next trigger retries.
func (f *Fetcher) Fetch(ctx context.Context, meetingID string) (*Content, error) {
	deadline := f.clock.Now().Add(f.policy.MaxWait)

	for {
		c, err := f.attempt(ctx, meetingID)
		if err == nil {
			return c, nil
		}
		if !fuperrors.IsNotReady(err) {
			return nil, err
		}

		if !f.clock.Now().Add(f.policy.Interval).Before(deadline) {
			break
		}
		f.log.Info("content not ready, polling",
			logging.F("meeting_id", meetingID),
			logging.F("interval", f.policy.Interval))
		if err := f.clock.Sleep(ctx, f.policy.Interval); err != nil {
			return nil, err
		}
	}

	// One final attempt at the deadline.
	c, err := f.attempt(ctx, meetingID)
	if err == nil {
		return c, nil
	}
	if fuperrors.IsNotReady(err) {
		f.log.Warn("content not ready within max wait",
			logging.F("meeting_id", meetingID),
			logging.F("max_wait", f.policy.MaxWait))
	}
	return nil, err
}

// attempt makes a single readiness check for both transcript and notes.
func (f *Fetcher) attempt(ctx context.Context, meetingID string) (*Content, error) {
	notes, err := f.fetchNotes(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	segments, err := f.fetchTranscript(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return &Content{Notes: notes, Segments: segments}, nil
}

// panelsResponse is the notes API response shape.
type panelsResponse struct {
	Panels []panel `json:"panels"`
}

type panel struct {
	Title   string `json:"title"`
	Content *block `json:"content"`
}

// fetchNotes requests the generated-notes panels and flattens them. Notes
// shorter than the configured floor count as not ready: the source streams
// panels in while generation is still running.
func (f *Fetcher) fetchNotes(ctx context.Context, meetingID string) (string, error) {
	var resp panelsResponse
	err := f.post(ctx, "/v1/get-document-panels", map[string]string{"document_id": meetingID}, &resp)
	if err != nil {
		return "", err
	}
	text := flattenPanels(resp.Panels)
	if len(text) < f.minNotesChars {
		return "", fmt.Errorf("notes %d chars (< %d): %w", len(text), f.minNotesChars, fuperrors.ErrNotReady)
	}
	return text, nil
}

// transcriptResponse is the transcript API response shape.
type transcriptResponse struct {
	Ready    bool                 `json:"ready"`
	Segments []transcript.Segment `json:"segments"`
}

// fetchTranscript requests the raw transcript segments in chronological
// order.
func (f *Fetcher) fetchTranscript(ctx context.Context, meetingID string) ([]transcript.Segment, error) {
	var resp transcriptResponse
	err := f.post(ctx, "/v1/get-document-transcript", map[string]string{"document_id": meetingID}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Ready || len(resp.Segments) == 0 {
		return nil, fmt.Errorf("transcript for %s: %w", meetingID, fuperrors.ErrNotReady)
	}
	return resp.Segments, nil
}

// post issues an authenticated JSON POST and decodes the response.
// 404 means the document has no content yet and maps to ErrNotReady;
// auth and transport failures map to ErrCollaboratorUnavailable.
func (f *Fetcher) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("content API %s: %v: %w", path, err, fuperrors.ErrCollaboratorUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("content API %s: %w", path, fuperrors.ErrNotReady)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("content API %s: status %d: %w", path, resp.StatusCode, fuperrors.ErrCollaboratorUnavailable)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("content API %s: unexpected status %d: %w", path, resp.StatusCode, fuperrors.ErrCollaboratorUnavailable)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %v: %w", err, fuperrors.ErrCollaboratorUnavailable)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
