// Package pipeline wires the follow-up pipeline: lock guard, source
// discovery, meeting selection, dedup, content fetching, speaker labeling,
// context aggregation, draft generation, draft emission, state commit, and
// status recording. A run is single-threaded and runs to completion; the
// lock guard is the only concurrency control.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/otherjamesbrown/followup-cli/config"
	"github.com/otherjamesbrown/followup-cli/pkg/content"
	"github.com/otherjamesbrown/followup-cli/pkg/draft"
	fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
	"github.com/otherjamesbrown/followup-cli/pkg/logging"
	"github.com/otherjamesbrown/followup-cli/pkg/mailstore"
	"github.com/otherjamesbrown/followup-cli/pkg/meeting"
	"github.com/otherjamesbrown/followup-cli/pkg/state"
	"github.com/otherjamesbrown/followup-cli/pkg/status"
	"github.com/otherjamesbrown/followup-cli/pkg/transcript"
)

// Discoverer locates and normalizes the metadata source.
type Discoverer interface {
	Discover() (*meeting.DocumentSet, error)
}

// LockGuard is the mutual-exclusion primitive for runs.
type LockGuard interface {
	Acquire() error
	Release()
}

// ContentFetcher retrieves transcript and notes with bounded polling.
type ContentFetcher interface {
	Fetch(ctx context.Context, meetingID string) (*content.Content, error)
}

// ContextGatherer collects prior correspondence for external attendees.
type ContextGatherer interface {
	Gather(ctx context.Context, contacts []meeting.Attendee) ([]mailstore.ContactContext, error)
}

// Generator produces the validated draft content.
type Generator interface {
	Generate(ctx context.Context, req *draft.Request) (*draft.Draft, error)
}

// Emitter persists drafts and reports the sender identity.
type Emitter interface {
	CreateDraft(ctx context.Context, to, cc []string, subject, body string) (string, error)
	SenderName(ctx context.Context) (string, error)
}

// Deps carries the pipeline's collaborators, injectable for tests.
type Deps struct {
	Lock      LockGuard
	Discovery Discoverer
	Selector  *meeting.Selector
	Store     *state.Store
	Fetcher   ContentFetcher
	Gatherer  ContextGatherer
	Generator Generator
	Emitter   Emitter
	Recorder  *status.Recorder
	Logger    logging.Logger
}

// Pipeline executes one trigger-driven pass.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  logging.Logger
}

// New creates a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Pipeline{cfg: cfg, deps: deps, log: log}
}

// Result is the terminal outcome of one run.
type Result struct {
	Outcome   status.Outcome
	MeetingID string
	Draft     *status.DraftResult
}

// Run executes one pipeline pass. The returned error is non-nil only for
// unexpected internal failures; every expected terminal condition (skips,
// deferrals, collaborator failures, lock contention, missing source) is a
// clean Result with exit code zero.
func (p *Pipeline) Run(ctx context.Context, health status.Health) (*Result, error) {
	runID := status.NewRunID()
	start := time.Now()
	log := p.log.With(logging.F("run_id", runID))
	log.Info("follow-up run triggered")

	// A second trigger arriving mid-run exits immediately without side
	// effects: no event, no snapshot, no state writes.
	if err := p.deps.Lock.Acquire(); err != nil {
		if fuperrors.IsAlreadyRunning(err) {
			log.Info("another run holds the lock, exiting")
			return &Result{Outcome: status.OutcomeLockContention}, nil
		}
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	defer p.deps.Lock.Release()

	res, runErr := p.run(ctx, log)
	if runErr != nil {
		classified := fuperrors.Classify(runErr, "run")
		event := status.RunEvent{
			RunID:     runID,
			Timestamp: time.Now().UTC(),
			Outcome:   status.OutcomeFailed,
			MeetingID: res.MeetingID,
			ErrorCode: string(classified.Code),
			Error:     classified.Error(),
			Duration:  time.Since(start),
		}
		if res.Outcome == status.OutcomeDeferred {
			event.Outcome = status.OutcomeDeferred
			event.Deferred = 1
		}
		if err := p.deps.Recorder.Record(event, health); err != nil {
			log.Warn("recording run event failed", logging.Err(err))
		}
		if classified.Code == fuperrors.CodeInternal || classified.Code == fuperrors.CodeInvariant {
			return res, runErr
		}
		// Expected failure classes surface through the event log and
		// snapshot, not the exit code.
		log.Error("run ended with failure", logging.F("code", string(classified.Code)), logging.Err(runErr))
		res.Outcome = event.Outcome
		return res, nil
	}

	event := status.RunEvent{
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Outcome:   res.Outcome,
		MeetingID: res.MeetingID,
		Duration:  time.Since(start),
		Draft:     res.Draft,
	}
	switch res.Outcome {
	case status.OutcomeDrafted, status.OutcomeAbandoned:
		event.Processed = 1
	case status.OutcomeDeferred:
		event.Deferred = 1
	case status.OutcomeInternalSkip, status.OutcomeSpeakerphoneSkip, status.OutcomeAlreadyProcessed:
		event.Skipped = 1
	}
	if err := p.deps.Recorder.Record(event, health); err != nil {
		log.Warn("recording run event failed", logging.Err(err))
	}
	log.Info("run complete",
		logging.F("outcome", string(res.Outcome)),
		logging.F("duration", time.Since(start)))
	return res, nil
}

// run executes the pipeline body under the lock.
func (p *Pipeline) run(ctx context.Context, log logging.Logger) (*Result, error) {
	set, err := p.deps.Discovery.Discover()
	if err != nil {
		if fuperrors.IsSourceUnavailable(err) {
			log.Info("no metadata source, nothing to do")
			return &Result{Outcome: status.OutcomeNoSource}, nil
		}
		return &Result{Outcome: status.OutcomeFailed}, err
	}

	candidate, st, sawProcessed, err := p.pickCandidate(ctx, set, log)
	if err != nil {
		return &Result{Outcome: status.OutcomeFailed}, err
	}
	if candidate == nil {
		if sawProcessed {
			log.Info("all meetings in window already processed")
			return &Result{Outcome: status.OutcomeAlreadyProcessed}, nil
		}
		log.Info("no meetings in window")
		return &Result{Outcome: status.OutcomeNoMeetings}, nil
	}

	res := &Result{MeetingID: candidate.ID}
	log = log.With(logging.F("meeting_id", candidate.ID), logging.F("title", candidate.Title))

	switch cls := p.deps.Selector.Classify(candidate); cls {
	case meeting.ClassInternalSkip:
		// Terminal classification, recomputed deterministically on any
		// later pass; the state store stays untouched.
		log.Info("internal meeting, skipping")
		res.Outcome = status.OutcomeInternalSkip
		return res, nil
	case meeting.ClassSpeakerphoneSkip:
		log.Info("single audio channel, speaker attribution impossible, skipping")
		res.Outcome = status.OutcomeSpeakerphoneSkip
		return res, nil
	}

	// Deferral cutoff: a meeting that never becomes ready is abandoned
	// rather than retried forever.
	if st != nil && st.Attempts >= p.cfg.AbandonAfterAttempts {
		log.Warn("abandoning meeting after repeated deferrals",
			logging.F("attempts", st.Attempts))
		if err := p.deps.Store.RecordProcessed(ctx, candidate.ID, "abandoned"); err != nil {
			return res, err
		}
		res.Outcome = status.OutcomeAbandoned
		return res, nil
	}

	draftResult, err := p.process(ctx, candidate, log)
	if err != nil {
		// An invariant violation is an upstream filtering bug, not a
		// business condition; fail loudly without touching the store.
		if fuperrors.IsAmbiguousChannels(err) {
			res.Outcome = status.OutcomeFailed
			return res, err
		}
		// Other failures past the dedup check defer the meeting so the
		// next trigger retries; the commit ordering guarantees it was
		// never marked processed.
		if fuperrors.IsNotReady(err) {
			log.Info("content not ready, deferring")
		} else {
			log.Error("processing failed, deferring", logging.Err(err))
		}
		reason := fuperrors.Classify(err, "process").Code
		if recErr := p.deps.Store.RecordDeferred(ctx, candidate.ID, string(reason)); recErr != nil {
			return res, recErr
		}
		if fuperrors.IsNotReady(err) {
			res.Outcome = status.OutcomeDeferred
			return res, nil
		}
		res.Outcome = status.OutcomeDeferred
		return res, err
	}

	if err := p.deps.Store.RecordProcessed(ctx, candidate.ID, "drafted"); err != nil {
		return res, err
	}
	res.Outcome = status.OutcomeDrafted
	res.Draft = draftResult
	return res, nil
}

// pickCandidate returns the first meeting worth acting on: the eligible
// in-window meetings most recent first, augmented with previously deferred
// meetings still present in the document set, skipping anything already
// processed. Returns the meeting's existing record, if any, and whether any
// candidate was skipped as already processed.
func (p *Pipeline) pickCandidate(ctx context.Context, set *meeting.DocumentSet, log logging.Logger) (*meeting.Meeting, *state.Record, bool, error) {
	byID := make(map[string]*meeting.Meeting, len(set.Meetings))
	for i := range set.Meetings {
		byID[set.Meetings[i].ID] = &set.Meetings[i]
	}

	candidates := p.deps.Selector.Select(set, time.Now())

	// Previously deferred meetings stay retryable even after they age out
	// of the lookback window.
	deferred, err := p.deps.Store.ListDeferred(ctx)
	if err != nil {
		return nil, nil, false, err
	}
	inWindow := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		inWindow[c.ID] = struct{}{}
	}
	for _, rec := range deferred {
		if _, ok := inWindow[rec.MeetingID]; ok {
			continue
		}
		if m, ok := byID[rec.MeetingID]; ok {
			candidates = append(candidates, *m)
		}
	}

	sawProcessed := false
	for i := range candidates {
		rec, err := p.deps.Store.Get(ctx, candidates[i].ID)
		if err != nil {
			return nil, nil, sawProcessed, err
		}
		if rec != nil && rec.Status == state.StatusProcessed {
			log.Debug("meeting already processed", logging.F("meeting_id", candidates[i].ID))
			sawProcessed = true
			continue
		}
		return &candidates[i], rec, sawProcessed, nil
	}
	return nil, nil, sawProcessed, nil
}

// process runs the per-meeting stages: fetch, label, aggregate, generate,
// emit. At most one draft is created per meeting per run.
func (p *Pipeline) process(ctx context.Context, m *meeting.Meeting, log logging.Logger) (*status.DraftResult, error) {
	start := time.Now()

	// The metadata source publishes readiness flags ahead of the content
	// API. An explicit false means polling cannot succeed yet, so defer
	// without spending the poll budget.
	if explicitlyFalse(m.TranscriptReady) || explicitlyFalse(m.NotesReady) {
		return nil, fmt.Errorf("source reports content for %s not ready: %w", m.ID, fuperrors.ErrNotReady)
	}

	fetched, err := p.deps.Fetcher.Fetch(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	log.Info("content ready",
		logging.F("notes_chars", len(fetched.Notes)),
		logging.F("segments", len(fetched.Segments)))

	labeled, err := transcript.Label(m, fetched.Segments)
	if err != nil {
		// The selector's channel rule should make this unreachable.
		return nil, err
	}

	contexts, err := p.deps.Gatherer.Gather(ctx, p.deps.Selector.ExternalAttendees(m))
	if err != nil {
		return nil, err
	}

	senderName, err := p.deps.Emitter.SenderName(ctx)
	if err != nil || senderName == "" {
		if err != nil {
			log.Warn("could not resolve sender name, using configured fallback", logging.Err(err))
		}
		senderName = p.cfg.SenderName
	}

	to, cc := p.deps.Selector.Recipients(m)
	d, err := p.deps.Generator.Generate(ctx, &draft.Request{
		Meeting:        m,
		To:             to,
		CC:             cc,
		Transcript:     labeled,
		Notes:          fetched.Notes,
		Contexts:       contexts,
		SenderName:     senderName,
		DefaultSubject: p.cfg.DefaultSubject,
	})
	if err != nil {
		return nil, err
	}

	draftID, err := p.deps.Emitter.CreateDraft(ctx, to, cc, d.Subject, d.Body)
	if err != nil {
		return nil, err
	}
	log.Info("draft created",
		logging.F("draft_id", draftID),
		logging.F("to", len(to)),
		logging.F("cc", len(cc)))

	return &status.DraftResult{
		MeetingID:      m.ID,
		DraftID:        draftID,
		Duration:       time.Since(start),
		TranscriptSize: labeled.Size(),
	}, nil
}

// explicitlyFalse distinguishes a source that reports not-ready from one
// that reports nothing.
func explicitlyFalse(flag *bool) bool {
	return flag != nil && !*flag
}
