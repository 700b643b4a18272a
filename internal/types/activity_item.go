package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityItem is one recordable question inside an activity. The
// prompt text is owned by lesson content and never mutated here.
// AudioURL holds the durable recording reference; it stays empty until
// the first successful upload. The three assessment scores are set or
// cleared together.
type ActivityItem struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ActivityID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"activity_id"`
	Activity           *Activity      `gorm:"constraint:OnDelete:CASCADE;foreignKey:ActivityID;references:ID" json:"activity,omitempty"`
	Position           int            `gorm:"column:position;not null;default:0" json:"position"`
	Text               string         `gorm:"column:text;not null" json:"text"`
	AudioURL           string         `gorm:"column:audio_url" json:"audio_url"`
	ProgressID         *int64         `gorm:"column:progress_id" json:"progress_id,omitempty"`
	AccuracyScore      *float64       `gorm:"column:accuracy_score" json:"accuracy_score,omitempty"`
	FluencyScore       *float64       `gorm:"column:fluency_score" json:"fluency_score,omitempty"`
	PronunciationScore *float64       `gorm:"column:pronunciation_score" json:"pronunciation_score,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ActivityItem) TableName() string { return "activity_item" }
