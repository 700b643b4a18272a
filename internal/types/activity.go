package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Activity kinds. Only grouped-questions activities expose the
// recording pipeline; the other kinds are plain form validation
// handled elsewhere.
const (
	ActivityKindGroupedQuestions = "grouped_questions"
	ActivityKindListeningCloze   = "listening_cloze"
	ActivityKindSentenceMaking   = "sentence_making"
)

const (
	ActivityStatusAssigned  = "assigned"
	ActivityStatusSubmitted = "submitted"
	ActivityStatusGraded    = "graded"
)

type Activity struct {
	ID           uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	AssignmentID uuid.UUID      `gorm:"type:uuid;not null;index" json:"assignment_id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Kind         string         `gorm:"column:kind;not null;default:'grouped_questions'" json:"kind"`
	Position     int            `gorm:"column:position;not null;default:0" json:"position"`
	Status       string         `gorm:"column:status;not null;default:'assigned'" json:"status"`
	Score        *float64       `gorm:"column:score" json:"score,omitempty"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	Items        []ActivityItem `gorm:"constraint:OnDelete:CASCADE;foreignKey:ActivityID;references:ID" json:"items,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Activity) TableName() string { return "activity" }

// RequiresRecording reports whether this activity's items go through
// the audio submission pipeline.
func (a Activity) RequiresRecording() bool {
	return a.Kind == ActivityKindGroupedQuestions
}
