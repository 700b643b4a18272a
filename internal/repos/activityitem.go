package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/types"
)

type ActivityItemRepo interface {
	GetByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.ActivityItem, error)
	GetByActivityIDs(ctx context.Context, tx *gorm.DB, activityIDs []uuid.UUID) ([]*types.ActivityItem, error)
	SetRecording(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, audioURL string, progressID int64) error
	SetAssessment(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, accuracy, fluency, pronunciation float64) error
	ClearRecording(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error
}

type activityItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityItemRepo(db *gorm.DB, baseLog *logger.Logger) ActivityItemRepo {
	repoLog := baseLog.With("repo", "ActivityItemRepo")
	return &activityItemRepo{db: db, log: repoLog}
}

func (r *activityItemRepo) GetByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.ActivityItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ActivityItem
	if len(itemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", itemIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *activityItemRepo) GetByActivityIDs(ctx context.Context, tx *gorm.DB, activityIDs []uuid.UUID) ([]*types.ActivityItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.ActivityItem
	if len(activityIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("activity_id IN ?", activityIDs).
		Order("position ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *activityItemRepo) SetRecording(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, audioURL string, progressID int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	// Replacing a recording invalidates any prior assessment.
	updates := map[string]interface{}{
		"audio_url":           audioURL,
		"progress_id":         progressID,
		"accuracy_score":      nil,
		"fluency_score":       nil,
		"pronunciation_score": nil,
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ActivityItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

func (r *activityItemRepo) SetAssessment(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, accuracy, fluency, pronunciation float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"accuracy_score":      accuracy,
		"fluency_score":       fluency,
		"pronunciation_score": pronunciation,
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ActivityItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}

func (r *activityItemRepo) ClearRecording(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"audio_url":           "",
		"progress_id":         nil,
		"accuracy_score":      nil,
		"fluency_score":       nil,
		"pronunciation_score": nil,
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ActivityItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error; err != nil {
		return err
	}
	return nil
}
