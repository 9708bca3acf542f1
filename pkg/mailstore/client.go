// Package mailstore is the client for the mail-store collaborator. It covers
// both sides the pipeline needs: reading prior correspondence for context
// aggregation and persisting the finished draft.
package mailstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
)

// Message is one prior message in a correspondence thread.
type Message struct {
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Snippet string    `json:"snippet"`
	SentAt  time.Time `json:"sent_at"`
}

// Client talks to the mail-store API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a mail-store client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListThread returns prior messages exchanged with the given address since
// the given time, newest first, capped at maxCount. An empty result is
// valid: a new contact simply has no history.
func (c *Client) ListThread(ctx context.Context, address string, since time.Time, maxCount int) ([]Message, error) {
	reqBody := map[string]any{
		"address":   address,
		"since":     since.UTC().Format(time.RFC3339),
		"max_count": maxCount,
	}
	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.post(ctx, "/v1/threads/list", reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateDraft persists a draft and returns the mail store's opaque draft
// identifier. Failures map to ErrDraftCreationFailed so the orchestrator
// leaves the meeting deferred for retry on the next trigger.
func (c *Client) CreateDraft(ctx context.Context, to, cc []string, subject, body string) (string, error) {
	reqBody := map[string]any{
		"to":      to,
		"cc":      cc,
		"subject": subject,
		"body":    body,
	}
	var resp struct {
		DraftID string `json:"draft_id"`
	}
	if err := c.post(ctx, "/v1/drafts", reqBody, &resp); err != nil {
		return "", fmt.Errorf("%v: %w", err, fuperrors.ErrDraftCreationFailed)
	}
	if resp.DraftID == "" {
		return "", fmt.Errorf("mail store returned no draft ID: %w", fuperrors.ErrDraftCreationFailed)
	}
	return resp.DraftID, nil
}

// SenderName returns the account's display first name, or "" when the mail
// store has none configured.
func (c *Client) SenderName(ctx context.Context) (string, error) {
	var resp struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.get(ctx, "/v1/profile", &resp); err != nil {
		return "", err
	}
	if resp.DisplayName == "" {
		return "", nil
	}
	// First name only, matching how drafts are signed.
	for i, r := range resp.DisplayName {
		if r == ' ' {
			return resp.DisplayName[:i], nil
		}
	}
	return resp.DisplayName, nil
}

// Ping verifies the mail store is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	var resp struct {
		DisplayName string `json:"display_name"`
	}
	return c.get(ctx, "/v1/profile", &resp)
}

// post issues an authenticated JSON POST.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, out)
}

// get issues an authenticated GET.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, path, out)
}

// do executes the request, mapping auth/network failures to
// ErrCollaboratorUnavailable.
func (c *Client) do(req *http.Request, path string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail store %s: %v: %w", path, err, fuperrors.ErrCollaboratorUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("mail store %s: status %d: %w", path, resp.StatusCode, fuperrors.ErrCollaboratorUnavailable)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("mail store %s: unexpected status %d: %w", path, resp.StatusCode, fuperrors.ErrCollaboratorUnavailable)
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
