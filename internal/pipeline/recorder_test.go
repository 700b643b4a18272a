package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
)

func TestPermissionDenialLeavesStateUntouched(t *testing.T) {
	id := uuid.New()
	items := []Item{{ID: id, Text: "q1", AudioURL: "https://cdn.example.com/q1.webm",
		Assessment: &Assessment{AccuracyScore: 90, FluencyScore: 85, PronunciationScore: 88}}}
	env := newTestEnv(t, items)
	env.source.denied[id] = true

	err := env.pipe.StartRecording(context.Background(), id)
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("StartRecording = %v, want ErrPermissionDenied", err)
	}
	if env.notifier.count(EventPermissionDenied) != 1 {
		t.Fatalf("missing permission denied notification")
	}

	snap := mustSnapshot(t, env, id)
	if snap.State != StateDurableScored || snap.Assessment == nil {
		t.Fatalf("denial clobbered existing recording: %+v", snap)
	}
}

func TestStopWithoutStart(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})
	if err := env.pipe.StopRecording(context.Background(), id); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("StopRecording = %v, want ErrNotRecording", err)
	}
}

func TestRejectedClipIsDiscarded(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})

	cases := []struct {
		name string
		clip capture.Clip
	}{
		{"too short", capture.Clip{Data: make([]byte, 4096), MimeType: "audio/webm", Duration: 200 * time.Millisecond}},
		{"too small", capture.Clip{Data: make([]byte, 10), MimeType: "audio/webm", Duration: 3 * time.Second}},
		{"bad encoding", capture.Clip{Data: make([]byte, 4096), MimeType: "video/avi", Duration: 3 * time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env.source.clips[id] = tc.clip
			if err := env.pipe.StartRecording(context.Background(), id); err != nil {
				t.Fatalf("StartRecording: %v", err)
			}
			err := env.pipe.StopRecording(context.Background(), id)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("StopRecording = %v, want ValidationError", err)
			}
			snap := mustSnapshot(t, env, id)
			if snap.State != StateEmpty {
				t.Fatalf("rejected clip changed state to %v", snap.State)
			}
		})
	}
	if env.uploader.callCount() != 0 {
		t.Fatalf("rejected clips reached the uploader")
	}
	if env.notifier.count(EventRecordingRejected) != len(cases) {
		t.Fatalf("rejected notifications = %d, want %d", env.notifier.count(EventRecordingRejected), len(cases))
	}
}

func TestStopUploadsAutomatically(t *testing.T) {
	id := uuid.New()
	env := newTestEnv(t, []Item{{ID: id, Text: "q1"}})

	env.recordAndUpload(t, id)

	if env.uploader.callCount() != 1 {
		t.Fatalf("uploads = %d, want 1", env.uploader.callCount())
	}
	snap := mustSnapshot(t, env, id)
	if snap.State != StateDurable || snap.AudioURL == "" {
		t.Fatalf("after stop+upload: %+v", snap)
	}
	if env.notifier.count(EventRecordingUploaded) != 1 {
		t.Fatalf("missing uploaded notification")
	}
	// Upload is automatic; analysis is not.
	if env.assessor.callCount() != 0 {
		t.Fatalf("analysis ran without an explicit request")
	}
}

func TestReRecordSupersedesAssessment(t *testing.T) {
	id := uuid.New()
	items := []Item{{ID: id, Text: "q1", AudioURL: "https://cdn.example.com/q1.webm",
		Assessment: &Assessment{AccuracyScore: 60, FluencyScore: 55, PronunciationScore: 58}}}
	env := newTestEnv(t, items)
	env.source.clips[id] = validClip()

	if err := env.pipe.StartRecording(context.Background(), id); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	snap := mustSnapshot(t, env, id)
	if snap.State != StateEmpty || snap.Assessment != nil || snap.AudioURL != "" {
		t.Fatalf("start did not supersede prior recording: %+v", snap)
	}

	if err := env.pipe.StopRecording(context.Background(), id); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	env.pipe.Uploader.Wait()
	snap = mustSnapshot(t, env, id)
	if snap.State != StateDurable || snap.Assessment != nil {
		t.Fatalf("new recording carried old assessment: %+v", snap)
	}
}
