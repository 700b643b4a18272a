package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound       = errors.New("item not found")
	ErrNotRecording       = errors.New("no active capture for item")
	ErrUploadInFlight     = errors.New("upload already in flight for item")
	ErrAnalysisInFlight   = errors.New("analysis already in flight for item")
	ErrStaleGeneration    = errors.New("result belongs to a superseded recording")
	ErrNotUploaded        = errors.New("recording is not durably uploaded")
	ErrNotDeletable       = errors.New("no durable recording to delete")
	ErrSubmissionDisabled = errors.New("submission is disabled in preview mode")
)

// ValidationError rejects a captured clip before it enters the
// pipeline. The attempt is discarded and item state is unchanged.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// UploadError is terminal: retries are exhausted and the item stays
// ephemeral. Re-recording is the retry path.
type UploadError struct {
	ItemID uuid.UUID
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed for item %s: %v", e.ItemID, e.Err)
}
func (e *UploadError) Unwrap() error { return e.Err }

// AnalysisError is terminal: retries are exhausted and the item keeps
// its durable recording with no assessment. The analyze affordance
// stays available.
type AnalysisError struct {
	ItemID uuid.UUID
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed for item %s: %v", e.ItemID, e.Err)
}
func (e *AnalysisError) Unwrap() error { return e.Err }

// SubmissionValidationError aborts submission locally; the submit
// collaborator is never invoked.
type SubmissionValidationError struct {
	Violations []Violation
}

func (e *SubmissionValidationError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Message())
	}
	return "submission blocked: " + strings.Join(msgs, "; ")
}

// SubmissionError wraps a rejection from the submit collaborator.
// Item state is unchanged and resubmission is allowed.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submission rejected: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }
