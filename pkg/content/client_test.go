package content

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/transcript"
)

// fakeClock advances instantly on Sleep so polling tests run without
// wall-clock waits.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	c.sleeps++
	return ctx.Err()
}

// contentServer serves the two content endpoints, becoming ready after
// readyAfter notes requests.
func contentServer(t *testing.T, readyAfter int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/v1/get-document-panels":
			n := calls.Add(1)
			if int(n) < readyAfter {
				json.NewEncoder(w).Encode(panelsResponse{})
				return
			}
			json.NewEncoder(w).Encode(panelsResponse{Panels: []panel{{
				Title: "Summary",
				Content: &block{Content: []block{
					{Type: "paragraph", Content: []block{{Type: "text", Text: strings.Repeat("Discussed the rollout plan. ", 5)}}},
				}},
			}}})
		case "/v1/get-document-transcript":
			json.NewEncoder(w).Encode(transcriptResponse{
				Ready:    true,
				Segments: []transcript.Segment{{ChannelID: "mic", Text: "hello"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testFetcher(url string, clock Clock) *Fetcher {
	return NewFetcher(Config{
		BaseURL:       url,
		Token:         "test-token",
		Timeout:       5 * time.Second,
		Policy:        RetryPolicy{Interval: 30 * time.Second, MaxWait: 5 * time.Minute},
		MinNotesChars: 50,
		Clock:         clock,
	})
}

func TestFetch_ReadyFirstAttempt(t *testing.T) {
	srv, _ := contentServer(t, 1)
	clock := &fakeClock{now: time.Unix(1000, 0)}

	c, err := testFetcher(srv.URL, clock).Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Contains(t, c.Notes, "Summary:")
	assert.Contains(t, c.Notes, "rollout plan")
	require.Len(t, c.Segments, 1)
	assert.Equal(t, "mic", c.Segments[0].ChannelID)
	assert.Zero(t, clock.sleeps, "no polling needed when ready immediately")
}

func TestFetch_ReadyAfterPolling(t *testing.T) {
	srv, calls := contentServer(t, 3)
	clock := &fakeClock{now: time.Unix(1000, 0)}

	c, err := testFetcher(srv.URL, clock).Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Notes)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, clock.sleeps)
}

func TestFetch_NotReadyWithinMaxWait(t *testing.T) {
	srv, calls := contentServer(t, 1000)
	clock := &fakeClock{now: time.Unix(1000, 0)}

	_, err := testFetcher(srv.URL, clock).Fetch(context.Background(), "doc-1")
	require.Error(t, err)
	assert.True(t, fuperrors.IsNotReady(err))

	// 5m budget at 30s intervals: initial attempt, nine polls, one final
	// attempt at the deadline.
	assert.Equal(t, int32(11), calls.Load())
	assert.Equal(t, 9, clock.sleeps)
}

func TestFetch_TranscriptNotReadyDefers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/get-document-panels":
			json.NewEncoder(w).Encode(panelsResponse{Panels: []panel{{
				Content: &block{Content: []block{
					{Type: "paragraph", Content: []block{{Type: "text", Text: strings.Repeat("x", 60)}}},
				}},
			}}})
		case "/v1/get-document-transcript":
			json.NewEncoder(w).Encode(transcriptResponse{Ready: false})
		}
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := NewFetcher(Config{
		BaseURL: srv.URL, Token: "test-token", Timeout: time.Second,
		Policy: RetryPolicy{Interval: time.Minute, MaxWait: 2 * time.Minute},
		Clock:  clock,
	})

	_, err := f.Fetch(context.Background(), "doc-1")
	assert.True(t, fuperrors.IsNotReady(err))
}

func TestFetch_NotFoundIsNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := NewFetcher(Config{
		BaseURL: srv.URL, Token: "test-token", Timeout: time.Second,
		Policy: RetryPolicy{Interval: time.Minute, MaxWait: time.Minute},
		Clock:  clock,
	})

	_, err := f.Fetch(context.Background(), "doc-1")
	assert.True(t, fuperrors.IsNotReady(err))
}

func TestFetch_AuthFailureIsCollaboratorError(t *testing.T) {
	srv, _ := contentServer(t, 1)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := NewFetcher(Config{
		BaseURL: srv.URL, Token: "wrong-token", Timeout: time.Second,
		Policy: RetryPolicy{Interval: time.Minute, MaxWait: time.Minute},
		Clock:  clock,
	})

	_, err := f.Fetch(context.Background(), "doc-1")
	require.Error(t, err)
	assert.True(t, fuperrors.IsCollaboratorUnavailable(err))
	assert.Zero(t, clock.sleeps, "auth failures must not be polled")
}

func TestFetch_NetworkFailureIsCollaboratorError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	f := NewFetcher(Config{
		BaseURL: "http://127.0.0.1:1", Token: "t", Timeout: time.Second,
		Policy: RetryPolicy{Interval: time.Minute, MaxWait: time.Minute},
		Clock:  clock,
	})

	_, err := f.Fetch(context.Background(), "doc-1")
	assert.True(t, fuperrors.IsCollaboratorUnavailable(err))
}

func TestFetch_ContextCancelledDuringSleep(t *testing.T) {
	srv, _ := contentServer(t, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancellingClock{fakeClock: fakeClock{now: time.Unix(1000, 0)}, cancel: cancel}

	_, err := testFetcher(srv.URL, clock).Fetch(ctx, "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// cancellingClock cancels the context on the first sleep.
type cancellingClock struct {
	fakeClock
	cancel context.CancelFunc
}

func (c *cancellingClock) Sleep(ctx context.Context, d time.Duration) error {
	c.cancel()
	return c.fakeClock.Sleep(ctx, d)
}
