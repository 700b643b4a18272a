package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/logger"
)

const (
	ViolationNotRecorded = "item not recorded"
	ViolationNotUploaded = "item not yet uploaded"
)

// Violation is one item failing the submission gate.
type Violation struct {
	ItemID   uuid.UUID
	Position int
	Reason   string
}

func (v Violation) Message() string {
	return fmt.Sprintf("question %d: %s", v.Position+1, v.Reason)
}

// SubmitFunc is the external submission collaborator. Its resolution
// or rejection is the sole determinant of the success or failure
// notification shown to the student.
type SubmitFunc func(ctx context.Context, items []ItemSnapshot) error

// Gatekeeper validates every item before submission. Empty and
// ephemeral references block; durable references pass whether or not
// an assessment exists.
type Gatekeeper struct {
	log         *logger.Logger
	store       *Store
	submit      SubmitFunc
	notifier    Notifier
	previewMode bool
}

func NewGatekeeper(log *logger.Logger, store *Store, submit SubmitFunc, notifier Notifier, previewMode bool) *Gatekeeper {
	return &Gatekeeper{
		log:         log.With("component", "Gatekeeper"),
		store:       store,
		submit:      submit,
		notifier:    notifier,
		previewMode: previewMode,
	}
}

// TrySubmit classifies every item and either aborts with the full set
// of violations, never touching the submit collaborator, or hands the
// item set over and reports the collaborator's verdict. Item state is
// never mutated here, so a rejected submission can simply be retried.
func (g *Gatekeeper) TrySubmit(ctx context.Context) error {
	if g.previewMode {
		return ErrSubmissionDisabled
	}

	snaps := g.store.Snapshots()
	var violations []Violation
	for _, snap := range snaps {
		switch snap.State {
		case StateEmpty:
			violations = append(violations, Violation{ItemID: snap.ID, Position: snap.Position, Reason: ViolationNotRecorded})
		case StateEphemeral:
			violations = append(violations, Violation{ItemID: snap.ID, Position: snap.Position, Reason: ViolationNotUploaded})
		}
	}
	if len(violations) > 0 {
		for _, v := range violations {
			g.notifier.Notify(v.ItemID, EventSubmissionBlocked, v.Message())
		}
		g.log.Debug("Submission blocked", "violations", len(violations))
		return &SubmissionValidationError{Violations: violations}
	}

	if err := g.submit(ctx, snaps); err != nil {
		g.log.Warn("Submission rejected", "error", err)
		g.notifier.Notify(uuid.Nil, EventSubmissionRejected, "submission failed, please try again")
		return &SubmissionError{Err: err}
	}
	g.notifier.Notify(uuid.Nil, EventSubmissionAccepted, "assignment submitted")
	return nil
}
