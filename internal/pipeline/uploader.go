package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/retry"
)

// UploadResult is the durable reference handed back by the upload
// endpoint.
type UploadResult struct {
	AudioURL   string
	ProgressID int64
}

// RecordingUploader persists one clip durably. Implementations are the
// upload-recording API client or an in-process storage service.
type RecordingUploader interface {
	UploadRecording(ctx context.Context, itemID uuid.UUID, clip capture.Clip) (*UploadResult, error)
}

// Uploader is the upload coordinator. Uploads for distinct items run
// concurrently and independently; each item has at most one upload in
// flight. Uploads are never cancelled by navigation; they run to
// success or terminal failure on a background context and write back
// through the store, which drops results for superseded recordings.
type Uploader struct {
	log      *logger.Logger
	store    *Store
	client   RecordingUploader
	retry    retry.Func
	notifier Notifier

	wg sync.WaitGroup
}

func NewUploader(log *logger.Logger, store *Store, client RecordingUploader, retryFn retry.Func, notifier Notifier) *Uploader {
	return &Uploader{
		log:      log.With("component", "Uploader"),
		store:    store,
		client:   client,
		retry:    retryFn,
		notifier: notifier,
	}
}

// Start launches the upload for one accepted clip and returns
// immediately.
func (u *Uploader) Start(itemID uuid.UUID, generation uint64, clip capture.Clip) {
	if err := u.store.MarkUploadStarted(itemID, generation); err != nil {
		u.log.Debug("Upload not started", "item_id", itemID, "error", err)
		return
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.run(context.Background(), itemID, generation, clip)
	}()
}

func (u *Uploader) run(ctx context.Context, itemID uuid.UUID, generation uint64, clip capture.Clip) {
	var result *UploadResult
	err := u.retry(ctx, func(ctx context.Context) error {
		res, err := u.client.UploadRecording(ctx, itemID, clip)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		uploadErr := &UploadError{ItemID: itemID, Err: err}
		if ferr := u.store.FailUpload(itemID, generation); errors.Is(ferr, ErrStaleGeneration) {
			u.log.Debug("Dropping stale upload failure", "item_id", itemID, "generation", generation)
			return
		}
		u.log.Warn("Upload failed after retries", "item_id", itemID, "error", err)
		u.notifier.Notify(itemID, EventUploadFailed, uploadErr.Error())
		return
	}

	if err := u.store.CompleteUpload(itemID, generation, result.AudioURL, result.ProgressID); err != nil {
		if errors.Is(err, ErrStaleGeneration) {
			u.log.Debug("Dropping stale upload result", "item_id", itemID, "generation", generation)
			return
		}
		u.log.Warn("Could not record upload result", "item_id", itemID, "error", err)
		return
	}
	u.log.Debug("Upload completed", "item_id", itemID, "progress_id", result.ProgressID)
	u.notifier.Notify(itemID, EventRecordingUploaded, "recording saved")
}

// Wait blocks until all launched uploads have resolved.
func (u *Uploader) Wait() {
	u.wg.Wait()
}
