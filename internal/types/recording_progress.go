package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordingProgress is one persisted upload attempt. Its numeric id is
// the progress_id the upload endpoint hands back to correlate an item
// with its stored recording.
type RecordingProgress struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	ItemID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"item_id"`
	Item       *ActivityItem  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ItemID;references:ID" json:"item,omitempty"`
	StorageKey string         `gorm:"column:storage_key;not null" json:"storage_key"`
	AudioURL   string         `gorm:"column:audio_url;not null" json:"audio_url"`
	MimeType   string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes  int64          `gorm:"column:size_bytes" json:"size_bytes"`
	DurationMs int64          `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (RecordingProgress) TableName() string { return "recording_progress" }
