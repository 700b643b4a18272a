package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestTrySubmitBlocksIncompleteItems(t *testing.T) {
	items := []Item{
		{ID: uuid.New(), Text: "q1"},
		{ID: uuid.New(), Text: "q2", AudioURL: "https://cdn.example.com/q2.webm"},
		{ID: uuid.New(), Text: "q3"},
	}
	env := newTestEnv(t, items)

	// q3 gets a local clip that never uploads.
	env.source.clips[items[2].ID] = validClip()
	env.uploader.gate = make(chan struct{})
	if err := env.pipe.StartRecording(context.Background(), items[2].ID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := env.pipe.StopRecording(context.Background(), items[2].ID); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	err := env.pipe.TrySubmit(context.Background())
	var sve *SubmissionValidationError
	if !errors.As(err, &sve) {
		t.Fatalf("TrySubmit = %v, want SubmissionValidationError", err)
	}
	if len(sve.Violations) != 2 {
		t.Fatalf("violations = %d, want 2", len(sve.Violations))
	}
	if got := sve.Violations[0].Message(); got != "question 1: item not recorded" {
		t.Fatalf("first violation = %q", got)
	}
	if got := sve.Violations[1].Message(); got != "question 3: item not yet uploaded" {
		t.Fatalf("second violation = %q", got)
	}
	if env.submit.calls != 0 {
		t.Fatalf("submit collaborator invoked despite violations")
	}
	if env.notifier.count(EventSubmissionBlocked) != 2 {
		t.Fatalf("expected one blocked notification per violation, got %d", env.notifier.count(EventSubmissionBlocked))
	}

	close(env.uploader.gate)
	env.pipe.Wait()
}

func TestTrySubmitPassesWithoutAssessments(t *testing.T) {
	items := []Item{
		{ID: uuid.New(), Text: "q1", AudioURL: "https://cdn.example.com/q1.webm"},
		{ID: uuid.New(), Text: "q2", AudioURL: "https://cdn.example.com/q2.webm",
			Assessment: &Assessment{AccuracyScore: 75, FluencyScore: 70, PronunciationScore: 72}},
	}
	env := newTestEnv(t, items)

	if err := env.pipe.TrySubmit(context.Background()); err != nil {
		t.Fatalf("TrySubmit: %v", err)
	}
	if env.submit.calls != 1 {
		t.Fatalf("submit calls = %d, want 1", env.submit.calls)
	}
	if len(env.submit.items) != 2 {
		t.Fatalf("submitted items = %d, want 2", len(env.submit.items))
	}
	if env.notifier.count(EventSubmissionAccepted) != 1 {
		t.Fatalf("missing accepted notification")
	}
}

func TestTrySubmitRejectionIsRetryable(t *testing.T) {
	items := []Item{{ID: uuid.New(), Text: "q1", AudioURL: "https://cdn.example.com/q1.webm"}}
	env := newTestEnv(t, items)
	env.submit.err = fmt.Errorf("deadline passed")

	err := env.pipe.TrySubmit(context.Background())
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("TrySubmit = %v, want SubmissionError", err)
	}
	if env.notifier.count(EventSubmissionRejected) != 1 {
		t.Fatalf("missing rejected notification")
	}

	// State is untouched, so clearing the failure lets a retry pass.
	snap := mustSnapshot(t, env, items[0].ID)
	if snap.State != StateDurable {
		t.Fatalf("rejection mutated item state: %v", snap.State)
	}
	env.submit.err = nil
	if err := env.pipe.TrySubmit(context.Background()); err != nil {
		t.Fatalf("retry TrySubmit: %v", err)
	}
	if env.submit.calls != 2 {
		t.Fatalf("submit calls = %d, want 2", env.submit.calls)
	}
}

func TestTrySubmitDisabledInPreview(t *testing.T) {
	items := []Item{{ID: uuid.New(), Text: "q1", AudioURL: "https://cdn.example.com/q1.webm"}}
	submit := &fakeSubmitter{}
	pipe := New(testLogger(t), Config{
		Items:       items,
		Source:      newFakeSource(),
		Uploader:    &fakeUploader{},
		Assessor:    &fakeAssessor{},
		Submit:      submit.submit,
		PreviewMode: true,
	})
	if err := pipe.TrySubmit(context.Background()); !errors.Is(err, ErrSubmissionDisabled) {
		t.Fatalf("TrySubmit = %v, want ErrSubmissionDisabled", err)
	}
	if submit.calls != 0 {
		t.Fatalf("submit collaborator invoked in preview mode")
	}
}
