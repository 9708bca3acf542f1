package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a classified run error.
type ErrorCode string

const (
	CodeLockContention   ErrorCode = "lock_contention"
	CodeNoSource         ErrorCode = "no_source"
	CodeInternalSkip     ErrorCode = "internal_skip"
	CodeSpeakerphoneSkip ErrorCode = "speakerphone_skip"
	CodeContentNotReady  ErrorCode = "content_not_ready"
	CodeCollaborator     ErrorCode = "collaborator_failure"
	CodeGeneration       ErrorCode = "generation_failed"
	CodeDraftCreation    ErrorCode = "draft_creation_failed"
	CodeInvariant        ErrorCode = "invariant_violation"
	CodeCancelled        ErrorCode = "cancelled"
	CodeInternal         ErrorCode = "internal_error"
)

// RunError is a structured error for a failed or short-circuited pipeline stage.
type RunError struct {
	Code    ErrorCode
	Stage   string
	Message string
	Cause   error
}

func (e *RunError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Cause
}

// ErrorCodeInfo contains metadata about an error code.
type ErrorCodeInfo struct {
	Code            ErrorCode
	Retryable       bool
	Description     string
	SuggestedAction string
}

// ErrorCodeRegistry maps error codes to their metadata.
var ErrorCodeRegistry = map[ErrorCode]ErrorCodeInfo{
	CodeLockContention: {
		Code:            CodeLockContention,
		Retryable:       true,
		Description:     "Another run was already in progress",
		SuggestedAction: "No action needed; the next trigger will run normally",
	},
	CodeNoSource: {
		Code:            CodeNoSource,
		Retryable:       true,
		Description:     "No metadata source file was found",
		SuggestedAction: "Check the source directory: followup doctor",
	},
	CodeInternalSkip: {
		Code:            CodeInternalSkip,
		Retryable:       false,
		Description:     "Meeting had only internal attendees",
		SuggestedAction: "Expected outcome; no action needed",
	},
	CodeSpeakerphoneSkip: {
		Code:            CodeSpeakerphoneSkip,
		Retryable:       false,
		Description:     "Meeting had a single audio channel, speaker attribution impossible",
		SuggestedAction: "Expected outcome; no action needed",
	},
	CodeContentNotReady: {
		Code:            CodeContentNotReady,
		Retryable:       true,
		Description:     "Transcript or notes not yet generated by the data source",
		SuggestedAction: "Meeting is deferred; the next trigger retries automatically",
	},
	CodeCollaborator: {
		Code:            CodeCollaborator,
		Retryable:       true,
		Description:     "External collaborator auth or network failure",
		SuggestedAction: "Check credentials and connectivity: followup doctor",
	},
	CodeGeneration: {
		Code:            CodeGeneration,
		Retryable:       true,
		Description:     "Text generation errored or produced invalid output",
		SuggestedAction: "Check the generation endpoint and token; the meeting stays deferred",
	},
	CodeDraftCreation: {
		Code:            CodeDraftCreation,
		Retryable:       true,
		Description:     "Mail store rejected the draft",
		SuggestedAction: "Check mail-store credentials; the meeting stays deferred",
	},
	CodeInvariant: {
		Code:            CodeInvariant,
		Retryable:       false,
		Description:     "Upstream filtering bug let an invalid meeting through",
		SuggestedAction: "File a bug; inspect the event log for the offending meeting ID",
	},
	CodeCancelled: {
		Code:            CodeCancelled,
		Retryable:       false,
		Description:     "Run cancelled by signal or deadline",
		SuggestedAction: "Check if cancellation was intentional",
	},
	CodeInternal: {
		Code:            CodeInternal,
		Retryable:       false,
		Description:     "Unclassified internal error",
		SuggestedAction: "Check the run log in the state directory",
	},
}

// IsRetryable returns true if the given error code represents a condition the
// next trigger may resolve.
func IsRetryable(code ErrorCode) bool {
	info, ok := ErrorCodeRegistry[code]
	return ok && info.Retryable
}

// Classify inspects an error and returns a *RunError with the appropriate
// code. Errors that are already a *RunError pass through unchanged.
func Classify(err error, stage string) *RunError {
	if err == nil {
		return nil
	}

	var re *RunError
	if errors.As(err, &re) {
		return re
	}

	out := &RunError{
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		out.Code = CodeCancelled
	case errors.Is(err, ErrAlreadyRunning):
		out.Code = CodeLockContention
	case errors.Is(err, ErrSourceUnavailable):
		out.Code = CodeNoSource
	case errors.Is(err, ErrNotReady):
		out.Code = CodeContentNotReady
	case errors.Is(err, ErrAmbiguousChannels):
		out.Code = CodeInvariant
	case errors.Is(err, ErrGenerationFailed):
		out.Code = CodeGeneration
	case errors.Is(err, ErrDraftCreationFailed):
		out.Code = CodeDraftCreation
	case errors.Is(err, ErrCollaboratorUnavailable):
		out.Code = CodeCollaborator
	default:
		out.Code = CodeInternal
	}

	return out
}
