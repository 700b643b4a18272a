package pipeline

import (
	"testing"

	"github.com/google/uuid"
)

// buildStore seeds one item per requested state. Ephemeral is reached
// by accepting a clip that never uploads.
func buildStore(t *testing.T, states []ItemState) *Store {
	t.Helper()
	items := make([]Item, len(states))
	ids := make([]uuid.UUID, len(states))
	for i, st := range states {
		ids[i] = uuid.New()
		items[i] = Item{ID: ids[i], Text: "prompt"}
		switch st {
		case StateDurable:
			items[i].AudioURL = "https://cdn.example.com/a.webm"
		case StateDurableScored:
			items[i].AudioURL = "https://cdn.example.com/a.webm"
			items[i].Assessment = &Assessment{AccuracyScore: 90, FluencyScore: 80, PronunciationScore: 85}
		}
	}
	s := NewStore(items)
	for i, st := range states {
		if st == StateEphemeral {
			gen, err := s.BeginRecording(ids[i])
			if err != nil {
				t.Fatalf("BeginRecording: %v", err)
			}
			if err := s.AcceptClip(ids[i], gen, validClip()); err != nil {
				t.Fatalf("AcceptClip: %v", err)
			}
		}
	}
	return s
}

func TestProgressCounting(t *testing.T) {
	cases := []struct {
		name      string
		states    []ItemState
		completed int
		display   string
	}{
		{
			name:      "one durable of three",
			states:    []ItemState{StateEphemeral, StateDurable, StateEmpty},
			completed: 1,
			display:   "1 / 3",
		},
		{
			name:      "scored counts same as durable",
			states:    []ItemState{StateDurableScored, StateDurable},
			completed: 2,
			display:   "2 / 2",
		},
		{
			name:      "nothing recorded",
			states:    []ItemState{StateEmpty, StateEmpty},
			completed: 0,
			display:   "0 / 2",
		},
		{
			name:      "ephemeral never counts",
			states:    []ItemState{StateEphemeral, StateEphemeral, StateEphemeral},
			completed: 0,
			display:   "0 / 3",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := buildStore(t, tc.states)
			p := s.Progress()
			if p.Completed != tc.completed || p.Total != len(tc.states) {
				t.Fatalf("Progress = %d/%d, want %d/%d", p.Completed, p.Total, tc.completed, len(tc.states))
			}
			if got := p.Display(); got != tc.display {
				t.Fatalf("Display = %q, want %q", got, tc.display)
			}
		})
	}
}

func TestSubmitOpacity(t *testing.T) {
	incomplete := buildStore(t, []ItemState{StateDurable, StateEmpty}).Progress()
	if incomplete.Complete() {
		t.Fatalf("incomplete progress reported complete")
	}
	if got := incomplete.SubmitOpacity(); got != 0.3 {
		t.Fatalf("incomplete opacity = %v, want 0.3", got)
	}

	complete := buildStore(t, []ItemState{StateDurable, StateDurableScored}).Progress()
	if !complete.Complete() {
		t.Fatalf("complete progress reported incomplete")
	}
	if got := complete.SubmitOpacity(); got != 1.0 {
		t.Fatalf("complete opacity = %v, want 1.0", got)
	}
}

func TestProgressTracksDeletion(t *testing.T) {
	id := uuid.New()
	s := NewStore([]Item{{ID: id, Text: "prompt", AudioURL: "https://cdn.example.com/a.webm"}})
	if p := s.Progress(); p.Completed != 1 {
		t.Fatalf("seeded durable not counted: %+v", p)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if p := s.Progress(); p.Completed != 0 {
		t.Fatalf("deleted recording still counted: %+v", p)
	}
}
