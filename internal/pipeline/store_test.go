package pipeline

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestStoreSeeding(t *testing.T) {
	emptyID := uuid.New()
	durableID := uuid.New()
	scoredID := uuid.New()

	s := NewStore([]Item{
		{ID: emptyID, Text: "say hello"},
		{ID: durableID, Text: "say goodbye", AudioURL: "https://cdn.example.com/a.webm", ProgressID: 7},
		{ID: scoredID, Text: "introduce yourself", AudioURL: "https://cdn.example.com/b.webm", ProgressID: 8,
			Assessment: &Assessment{AccuracyScore: 90, FluencyScore: 85, PronunciationScore: 88}},
	})

	cases := []struct {
		name  string
		id    uuid.UUID
		state ItemState
	}{
		{"never recorded", emptyID, StateEmpty},
		{"durable reference", durableID, StateDurable},
		{"durable with assessment", scoredID, StateDurableScored},
	}
	for _, tc := range cases {
		snap, err := s.Snapshot(tc.id)
		if err != nil {
			t.Fatalf("%s: Snapshot: %v", tc.name, err)
		}
		if snap.State != tc.state {
			t.Fatalf("%s: state = %v, want %v", tc.name, snap.State, tc.state)
		}
	}

	if got := s.Snapshots(); len(got) != 3 || got[0].ID != emptyID || got[2].ID != scoredID {
		t.Fatalf("Snapshots out of roster order: %+v", got)
	}
}

func TestStoreLifecycle(t *testing.T) {
	id := uuid.New()
	s := NewStore([]Item{{ID: id, Text: "say hello"}})

	gen, err := s.BeginRecording(id)
	if err != nil {
		t.Fatalf("BeginRecording: %v", err)
	}
	if err := s.AcceptClip(id, gen, validClip()); err != nil {
		t.Fatalf("AcceptClip: %v", err)
	}
	snap, _ := s.Snapshot(id)
	if snap.State != StateEphemeral || snap.Clip == nil {
		t.Fatalf("after AcceptClip: state=%v clip=%v", snap.State, snap.Clip)
	}

	if err := s.MarkUploadStarted(id, gen); err != nil {
		t.Fatalf("MarkUploadStarted: %v", err)
	}
	if err := s.MarkUploadStarted(id, gen); !errors.Is(err, ErrUploadInFlight) {
		t.Fatalf("second MarkUploadStarted = %v, want ErrUploadInFlight", err)
	}

	if err := s.CompleteUpload(id, gen, "https://cdn.example.com/a.webm", 42); err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	snap, _ = s.Snapshot(id)
	if snap.State != StateDurable || snap.AudioURL == "" || snap.ProgressID != 42 {
		t.Fatalf("after CompleteUpload: %+v", snap)
	}
	if snap.Clip != nil {
		t.Fatalf("durable item still holds local clip")
	}

	agen, asnap, err := s.BeginAnalysis(id)
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	if asnap.AudioURL != snap.AudioURL || asnap.Text != "say hello" {
		t.Fatalf("analysis snapshot missing inputs: %+v", asnap)
	}
	if err := s.CompleteAnalysis(id, agen, Assessment{AccuracyScore: 90, FluencyScore: 80, PronunciationScore: 85}); err != nil {
		t.Fatalf("CompleteAnalysis: %v", err)
	}
	snap, _ = s.Snapshot(id)
	if snap.State != StateDurableScored || snap.Assessment == nil {
		t.Fatalf("after CompleteAnalysis: %+v", snap)
	}

	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, _ = s.Snapshot(id)
	if snap.State != StateEmpty || snap.AudioURL != "" || snap.Assessment != nil || snap.ProgressID != 0 {
		t.Fatalf("after Delete: %+v", snap)
	}
	if err := s.Delete(id); !errors.Is(err, ErrNotDeletable) {
		t.Fatalf("Delete on empty = %v, want ErrNotDeletable", err)
	}
}

func TestStoreSupersedeDropsStaleResults(t *testing.T) {
	id := uuid.New()
	s := NewStore([]Item{{ID: id, Text: "say hello"}})

	gen1, _ := s.BeginRecording(id)
	if err := s.AcceptClip(id, gen1, validClip()); err != nil {
		t.Fatalf("AcceptClip: %v", err)
	}
	if err := s.MarkUploadStarted(id, gen1); err != nil {
		t.Fatalf("MarkUploadStarted: %v", err)
	}

	// Re-record while the first upload is still out.
	gen2, _ := s.BeginRecording(id)
	if gen2 <= gen1 {
		t.Fatalf("generation did not advance: %d -> %d", gen1, gen2)
	}

	if err := s.CompleteUpload(id, gen1, "https://cdn.example.com/stale.webm", 1); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("stale CompleteUpload = %v, want ErrStaleGeneration", err)
	}
	if err := s.FailUpload(id, gen1); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("stale FailUpload = %v, want ErrStaleGeneration", err)
	}

	snap, _ := s.Snapshot(id)
	if snap.State != StateEmpty || snap.AudioURL != "" {
		t.Fatalf("stale result leaked into state: %+v", snap)
	}

	// The new generation still has a free upload slot.
	if err := s.AcceptClip(id, gen2, validClip()); err != nil {
		t.Fatalf("AcceptClip gen2: %v", err)
	}
	if err := s.MarkUploadStarted(id, gen2); err != nil {
		t.Fatalf("MarkUploadStarted gen2: %v", err)
	}
}

func TestStoreDeleteInvalidatesInFlightAnalysis(t *testing.T) {
	id := uuid.New()
	s := NewStore([]Item{{ID: id, Text: "say hello", AudioURL: "https://cdn.example.com/a.webm"}})

	gen, _, err := s.BeginAnalysis(id)
	if err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.CompleteAnalysis(id, gen, Assessment{}); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("stale CompleteAnalysis = %v, want ErrStaleGeneration", err)
	}
}

func TestStoreAnalysisGuards(t *testing.T) {
	id := uuid.New()
	s := NewStore([]Item{{ID: id, Text: "say hello"}})

	if s.CanAnalyze(id) {
		t.Fatalf("CanAnalyze true for never-recorded item")
	}
	if _, _, err := s.BeginAnalysis(id); !errors.Is(err, ErrNotUploaded) {
		t.Fatalf("BeginAnalysis on empty = %v, want ErrNotUploaded", err)
	}

	gen, _ := s.BeginRecording(id)
	if err := s.AcceptClip(id, gen, validClip()); err != nil {
		t.Fatalf("AcceptClip: %v", err)
	}
	if s.CanAnalyze(id) {
		t.Fatalf("CanAnalyze true for ephemeral item")
	}

	if err := s.CompleteUpload(id, gen, "https://cdn.example.com/a.webm", 1); err != nil {
		t.Fatalf("CompleteUpload: %v", err)
	}
	if !s.CanAnalyze(id) {
		t.Fatalf("CanAnalyze false for durable item")
	}

	if _, _, err := s.BeginAnalysis(id); err != nil {
		t.Fatalf("BeginAnalysis: %v", err)
	}
	if _, _, err := s.BeginAnalysis(id); !errors.Is(err, ErrAnalysisInFlight) {
		t.Fatalf("second BeginAnalysis = %v, want ErrAnalysisInFlight", err)
	}
}

func TestStoreUnknownItem(t *testing.T) {
	s := NewStore(nil)
	id := uuid.New()
	if _, err := s.Snapshot(id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("Snapshot = %v, want ErrItemNotFound", err)
	}
	if _, err := s.BeginRecording(id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("BeginRecording = %v, want ErrItemNotFound", err)
	}
	if err := s.Delete(id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("Delete = %v, want ErrItemNotFound", err)
	}
}

