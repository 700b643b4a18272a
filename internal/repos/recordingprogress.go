package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/types"
)

type RecordingProgressRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.RecordingProgress) ([]*types.RecordingProgress, error)
	GetByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.RecordingProgress, error)
	SoftDeleteByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) error
}

type recordingProgressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecordingProgressRepo(db *gorm.DB, baseLog *logger.Logger) RecordingProgressRepo {
	repoLog := baseLog.With("repo", "RecordingProgressRepo")
	return &recordingProgressRepo{db: db, log: repoLog}
}

func (r *recordingProgressRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.RecordingProgress) ([]*types.RecordingProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.RecordingProgress{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *recordingProgressRepo) GetByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.RecordingProgress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.RecordingProgress
	if len(itemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("item_id IN ?", itemIDs).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *recordingProgressRepo) SoftDeleteByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(itemIDs) == 0 {
		return nil
	}
	if err := transaction.WithContext(ctx).
		Where("item_id IN ?", itemIDs).
		Delete(&types.RecordingProgress{}).Error; err != nil {
		return err
	}
	return nil
}
