package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUploadRetriesThenSucceeds(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})
	env.uploader.failures = 2

	env.recordAndUpload(t, id)

	if env.uploader.callCount() != 3 {
		t.Fatalf("upload attempts = %d, want 3", env.uploader.callCount())
	}
	snap := mustSnapshot(t, env, id)
	if snap.State != StateDurable {
		t.Fatalf("state = %v, want durable", snap.State)
	}
	if env.notifier.count(EventUploadFailed) != 0 {
		t.Fatalf("transient attempts surfaced a failure notification")
	}
}

func TestUploadTerminalFailureStaysEphemeral(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})
	env.uploader.failures = 100

	ctx := context.Background()
	env.source.clips[id] = validClip()
	if err := env.pipe.StartRecording(ctx, id); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := env.pipe.StopRecording(ctx, id); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	env.pipe.Uploader.Wait()

	snap := mustSnapshot(t, env, id)
	if snap.State != StateEphemeral {
		t.Fatalf("state = %v, want ephemeral after terminal failure", snap.State)
	}
	if snap.Clip == nil {
		t.Fatalf("failed upload discarded the local clip")
	}
	if env.notifier.count(EventUploadFailed) != 1 {
		t.Fatalf("upload failed notifications = %d, want 1", env.notifier.count(EventUploadFailed))
	}

	// Re-recording is the retry path.
	env.uploader.failures = 0
	env.recordAndUpload(t, id)
	snap = mustSnapshot(t, env, id)
	if snap.State != StateDurable {
		t.Fatalf("re-record did not recover: %v", snap.State)
	}
}

func TestStaleUploadResultIsDropped(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})
	env.source.clips[id] = validClip()
	env.uploader.gate = make(chan struct{})

	ctx := context.Background()
	if err := env.pipe.StartRecording(ctx, id); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := env.pipe.StopRecording(ctx, id); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	// Supersede while the first upload is parked on the gate.
	if err := env.pipe.StartRecording(ctx, id); err != nil {
		t.Fatalf("second StartRecording: %v", err)
	}
	close(env.uploader.gate)
	env.pipe.Uploader.Wait()

	snap := mustSnapshot(t, env, id)
	if snap.State != StateEmpty || snap.AudioURL != "" {
		t.Fatalf("stale upload landed: %+v", snap)
	}
	if env.notifier.count(EventRecordingUploaded) != 0 {
		t.Fatalf("stale upload produced a success notification")
	}
}

func TestUploadsForDistinctItemsRunIndependently(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	env := newTestEnv(t, []Item{{ID: a, Text: "q1"}, {ID: b, Text: "q2"}})

	env.recordAndUpload(t, a)
	env.recordAndUpload(t, b)

	for _, id := range []uuid.UUID{a, b} {
		snap := mustSnapshot(t, env, id)
		if snap.State != StateDurable {
			t.Fatalf("item %s state = %v, want durable", id, snap.State)
		}
	}
	if env.uploader.callCount() != 2 {
		t.Fatalf("uploads = %d, want 2", env.uploader.callCount())
	}
}
