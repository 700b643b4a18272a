package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
)

// ClipPolicy validates a captured clip before it enters the pipeline.
type ClipPolicy struct {
	MinDuration      time.Duration
	MinBytes         int
	AllowedMimeTypes []string
}

func DefaultClipPolicy() ClipPolicy {
	return ClipPolicy{
		MinDuration: time.Second,
		MinBytes:    1024,
		AllowedMimeTypes: []string{
			"audio/webm",
			"audio/ogg",
			"audio/wav",
			"audio/mp4",
			"audio/mpeg",
		},
	}
}

func (p ClipPolicy) Validate(clip capture.Clip) error {
	if clip.Duration < p.MinDuration {
		return &ValidationError{Reason: fmt.Sprintf("recording too short: %s, need at least %s", clip.Duration, p.MinDuration)}
	}
	if len(clip.Data) < p.MinBytes {
		return &ValidationError{Reason: fmt.Sprintf("recording too small: %d bytes, need at least %d", len(clip.Data), p.MinBytes)}
	}
	if len(p.AllowedMimeTypes) > 0 {
		mime := strings.ToLower(strings.TrimSpace(clip.MimeType))
		for _, allowed := range p.AllowedMimeTypes {
			if mime == allowed {
				return nil
			}
		}
		return &ValidationError{Reason: fmt.Sprintf("unsupported audio encoding %q", clip.MimeType)}
	}
	return nil
}

// Recorder captures microphone audio for the active item. Stopping a
// valid capture moves the item to ephemeral-local and immediately
// hands the clip to the upload coordinator; the student never has to
// navigate or confirm for the upload to start.
type Recorder struct {
	log      *logger.Logger
	store    *Store
	source   capture.Source
	policy   ClipPolicy
	uploader *Uploader
	notifier Notifier

	mu     sync.Mutex
	active map[uuid.UUID]*activeCapture
}

type activeCapture struct {
	session    capture.Session
	generation uint64
}

func NewRecorder(log *logger.Logger, store *Store, source capture.Source, policy ClipPolicy, uploader *Uploader, notifier Notifier) *Recorder {
	return &Recorder{
		log:      log.With("component", "Recorder"),
		store:    store,
		source:   source,
		policy:   policy,
		uploader: uploader,
		notifier: notifier,
		active:   make(map[uuid.UUID]*activeCapture),
	}
}

// StartRecording acquires the microphone and begins capture. The
// device is acquired before any state changes, so a permission denial
// leaves the item's existing recording untouched. Once capture is
// secured, any prior recording and assessment for the item are
// superseded.
func (r *Recorder) StartRecording(ctx context.Context, itemID uuid.UUID) error {
	session, err := r.source.Begin(ctx, itemID)
	if err != nil {
		if errors.Is(err, capture.ErrPermissionDenied) {
			r.notifier.Notify(itemID, EventPermissionDenied, "microphone access is required to record")
			return capture.ErrPermissionDenied
		}
		return fmt.Errorf("begin capture: %w", err)
	}

	generation, err := r.store.BeginRecording(itemID)
	if err != nil {
		session.Discard()
		return err
	}

	r.mu.Lock()
	if prev, ok := r.active[itemID]; ok {
		prev.session.Discard()
	}
	r.active[itemID] = &activeCapture{session: session, generation: generation}
	r.mu.Unlock()

	r.log.Debug("Recording started", "item_id", itemID, "generation", generation)
	return nil
}

// StopRecording finalizes the capture, validates the clip and, on
// success, transitions the item to ephemeral-local and starts the
// upload in the background. A rejected clip is discarded with the item
// state left as it stands.
func (r *Recorder) StopRecording(ctx context.Context, itemID uuid.UUID) error {
	r.mu.Lock()
	ac, ok := r.active[itemID]
	if ok {
		delete(r.active, itemID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotRecording
	}

	clip, err := ac.session.Finish(ctx)
	if err != nil {
		r.notifier.Notify(itemID, EventRecordingRejected, "recording could not be captured")
		return fmt.Errorf("finish capture: %w", err)
	}

	if verr := r.policy.Validate(clip); verr != nil {
		var v *ValidationError
		if errors.As(verr, &v) {
			r.notifier.Notify(itemID, EventRecordingRejected, v.Reason)
		}
		r.log.Debug("Clip rejected", "item_id", itemID, "error", verr)
		return verr
	}

	if err := r.store.AcceptClip(itemID, ac.generation, clip); err != nil {
		// Superseded while stopping; the newer recording wins.
		r.log.Debug("Dropping clip for superseded recording", "item_id", itemID, "error", err)
		return err
	}

	r.uploader.Start(itemID, ac.generation, clip)
	return nil
}
