package pipeline

import (
	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
)

// ItemState is the recording lifecycle of one item. The tagged enum
// replaces a bag of optional fields so that illegal combinations, such
// as an assessment with no durable recording, cannot be represented.
type ItemState int

const (
	// StateEmpty means the item was never recorded, or its recording
	// was deleted.
	StateEmpty ItemState = iota
	// StateEphemeral means a clip exists on this device only. It is
	// not durable and not valid to submit.
	StateEphemeral
	// StateDurable means the recording is persisted at a remote URL.
	// Safe to submit; prerequisite for analysis.
	StateDurable
	// StateDurableScored is durable plus a completed assessment.
	StateDurableScored
)

func (s ItemState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateEphemeral:
		return "ephemeral"
	case StateDurable:
		return "durable"
	case StateDurableScored:
		return "durable_scored"
	default:
		return "unknown"
	}
}

// Submittable reports whether the state passes the submission gate.
// Analysis completion is not a submission precondition.
func (s ItemState) Submittable() bool {
	return s == StateDurable || s == StateDurableScored
}

// Assessment is the AI pronunciation score for a durable recording.
type Assessment struct {
	AccuracyScore      float64 `json:"accuracy_score"`
	FluencyScore       float64 `json:"fluency_score"`
	PronunciationScore float64 `json:"pronunciation_score"`
}

// Item seeds the store with one recordable question, typically loaded
// from the persisted roster. A non-empty AudioURL seeds the item as
// durable.
type Item struct {
	ID         uuid.UUID
	Text       string
	AudioURL   string
	ProgressID int64
	Assessment *Assessment
}

// ItemSnapshot is a read-only copy of one item's current state.
type ItemSnapshot struct {
	ID         uuid.UUID
	Position   int
	Text       string
	State      ItemState
	Clip       *capture.Clip
	AudioURL   string
	ProgressID int64
	Assessment *Assessment
	Generation uint64
}
