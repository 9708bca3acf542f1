// Package errors provides the domain error taxonomy for the followup pipeline.
//
// This package defines sentinel errors for the pipeline's terminal and
// transient conditions so that callers can use consistent errors.Is() checks
// instead of string matching.
//
// Usage:
//
//	import fuperrors "github.com/otherjamesbrown/followup-cli/pkg/errors"
//
//	// Return a domain error
//	return fuperrors.ErrNotReady
//
//	// Check for domain errors
//	if fuperrors.IsNotReady(err) {
//	    // defer the meeting and end the run
//	}
package errors

import "errors"

// Domain errors - sentinel errors for pipeline conditions.
var (
	// ErrAlreadyRunning indicates another pipeline run holds the lock.
	ErrAlreadyRunning = errors.New("another run is already in progress")

	// ErrSourceUnavailable indicates no candidate metadata source exists.
	ErrSourceUnavailable = errors.New("metadata source unavailable")

	// ErrNotReady indicates transcript or notes content is not yet available.
	ErrNotReady = errors.New("content not ready")

	// ErrAmbiguousChannels indicates the transcript does not have exactly two
	// distinct audio channels, so speaker attribution is impossible.
	ErrAmbiguousChannels = errors.New("ambiguous audio channels")

	// ErrGenerationFailed indicates the text-generation collaborator errored
	// or returned empty/malformed output.
	ErrGenerationFailed = errors.New("draft generation failed")

	// ErrDraftCreationFailed indicates the mail store rejected the draft.
	ErrDraftCreationFailed = errors.New("draft creation failed")

	// ErrCollaboratorUnavailable indicates an auth or network failure talking
	// to an external collaborator.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// IsAlreadyRunning reports whether any error in err's chain is ErrAlreadyRunning.
func IsAlreadyRunning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning)
}

// IsSourceUnavailable reports whether any error in err's chain is ErrSourceUnavailable.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsNotReady reports whether any error in err's chain is ErrNotReady.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}

// IsAmbiguousChannels reports whether any error in err's chain is ErrAmbiguousChannels.
func IsAmbiguousChannels(err error) bool {
	return errors.Is(err, ErrAmbiguousChannels)
}

// IsGenerationFailed reports whether any error in err's chain is ErrGenerationFailed.
func IsGenerationFailed(err error) bool {
	return errors.Is(err, ErrGenerationFailed)
}

// IsDraftCreationFailed reports whether any error in err's chain is ErrDraftCreationFailed.
func IsDraftCreationFailed(err error) bool {
	return errors.Is(err, ErrDraftCreationFailed)
}

// IsCollaboratorUnavailable reports whether any error in err's chain is ErrCollaboratorUnavailable.
func IsCollaboratorUnavailable(err error) bool {
	return errors.Is(err, ErrCollaboratorUnavailable)
}
