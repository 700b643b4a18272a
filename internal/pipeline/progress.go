package pipeline

import "fmt"

// Submit affordance opacity. Advisory only: the dimmed affordance
// remains clickable and hard validation stays with the gatekeeper.
const (
	SubmitOpacityFull   = 1.0
	SubmitOpacityDimmed = 0.3
)

// Progress is the derived completion summary. An item counts as
// completed only once its recording is durable; ephemeral-local never
// counts.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

func (p Progress) Display() string {
	return fmt.Sprintf("%d / %d", p.Completed, p.Total)
}

func (p Progress) Complete() bool {
	return p.Completed == p.Total
}

func (p Progress) SubmitOpacity() float64 {
	if p.Complete() {
		return SubmitOpacityFull
	}
	return SubmitOpacityDimmed
}

// Progress derives the completion summary from the current store
// state. Pure read; no transitions.
func (s *Store) Progress() Progress {
	snaps := s.Snapshots()
	p := Progress{Total: len(snaps)}
	for _, snap := range snaps {
		if snap.State.Submittable() {
			p.Completed++
		}
	}
	return p
}
