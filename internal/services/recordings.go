package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/repos"
	"github.com/openlingo/openlingo-backend/internal/types"
)

// StoredRecording is what the upload endpoint returns once the clip is
// durable: the public playback URL plus the progress row that tracks
// the stored object.
type StoredRecording struct {
	AudioURL   string `json:"audio_url"`
	ProgressID int64  `json:"progress_id"`
}

// RecordingService persists finished clips: object upload, progress
// row, and the item's recording columns, in that order. Deleting walks
// the same steps in reverse.
type RecordingService interface {
	StoreRecording(ctx context.Context, userID, itemID uuid.UUID, data []byte, mimeType string, duration time.Duration) (*StoredRecording, error)
	DeleteRecordings(ctx context.Context, itemID uuid.UUID) error
}

type recordingService struct {
	log          *logger.Logger
	db           *gorm.DB
	bucket       BucketService
	progressRepo repos.RecordingProgressRepo
	itemRepo     repos.ActivityItemRepo
}

func NewRecordingService(
	log *logger.Logger,
	db *gorm.DB,
	bucket BucketService,
	progressRepo repos.RecordingProgressRepo,
	itemRepo repos.ActivityItemRepo,
) RecordingService {
	return &recordingService{
		log:          log.With("service", "RecordingService"),
		db:           db,
		bucket:       bucket,
		progressRepo: progressRepo,
		itemRepo:     itemRepo,
	}
}

func (s *recordingService) StoreRecording(ctx context.Context, userID, itemID uuid.UUID, data []byte, mimeType string, duration time.Duration) (*StoredRecording, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("recording payload is empty")
	}
	if userID == uuid.Nil || itemID == uuid.Nil {
		return nil, fmt.Errorf("user id and item id required")
	}

	key := recordingKey(userID, itemID, mimeType)
	if err := s.bucket.UploadRecording(ctx, key, mimeType, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("upload recording object: %w", err)
	}
	audioURL := s.bucket.PublicURL(key)

	var progressID int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.progressRepo.Create(ctx, tx, []*types.RecordingProgress{{
			UserID:     userID,
			ItemID:     itemID,
			StorageKey: key,
			AudioURL:   audioURL,
			MimeType:   mimeType,
			SizeBytes:  int64(len(data)),
			DurationMs: duration.Milliseconds(),
		}})
		if err != nil {
			return err
		}
		progressID = rows[0].ID
		return s.itemRepo.SetRecording(ctx, tx, itemID, audioURL, progressID)
	})
	if err != nil {
		// The object is orphaned if the row never landed. Best effort
		// cleanup; the bucket prefix sweep on delete catches stragglers.
		if derr := s.bucket.DeleteRecording(context.Background(), key); derr != nil {
			s.log.Warn("Failed to clean up recording object after db failure", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("persist recording: %w", err)
	}

	s.log.Info("Recording stored", "item_id", itemID.String(), "progress_id", progressID, "size_bytes", len(data))
	return &StoredRecording{AudioURL: audioURL, ProgressID: progressID}, nil
}

func (s *recordingService) DeleteRecordings(ctx context.Context, itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return fmt.Errorf("item id required")
	}

	rows, err := s.progressRepo.GetByItemIDs(ctx, nil, []uuid.UUID{itemID})
	if err != nil {
		return fmt.Errorf("load recording progress: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.itemRepo.ClearRecording(ctx, tx, itemID); err != nil {
			return err
		}
		return s.progressRepo.SoftDeleteByItemIDs(ctx, tx, []uuid.UUID{itemID})
	})
	if err != nil {
		return fmt.Errorf("clear recording rows: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if err := s.bucket.DeleteRecording(gctx, row.StorageKey); err != nil {
				s.log.Warn("Failed to delete recording object", "key", row.StorageKey, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	s.log.Info("Recordings deleted", "item_id", itemID.String(), "count", len(rows))
	return nil
}

func recordingKey(userID, itemID uuid.UUID, mimeType string) string {
	ext := recordingExtension(mimeType)
	return fmt.Sprintf("recordings/%s/%s/%s%s", userID.String(), itemID.String(), uuid.New().String(), ext)
}

func recordingExtension(mimeType string) string {
	m := strings.ToLower(mimeType)
	switch {
	case strings.Contains(m, "webm"):
		return ".webm"
	case strings.Contains(m, "ogg"):
		return ".ogg"
	case strings.Contains(m, "wav"):
		return ".wav"
	case strings.Contains(m, "mp4"):
		return ".m4a"
	case strings.Contains(m, "mpeg") || strings.Contains(m, "mp3"):
		return ".mp3"
	case strings.Contains(m, "flac"):
		return ".flac"
	default:
		return ".bin"
	}
}
