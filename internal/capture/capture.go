// Package capture abstracts microphone capture for the recording
// pipeline. The actual device capture runs on the student's device;
// the server sees capture as a source that begins a session and later
// yields a finished clip.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPermissionDenied is returned by Source.Begin when device audio
// access was refused.
var ErrPermissionDenied = errors.New("microphone access denied")

// Clip is a finished recording, local and ephemeral until uploaded.
type Clip struct {
	Data     []byte
	MimeType string
	Duration time.Duration
}

// Session is one in-progress capture for one item.
type Session interface {
	// Finish finalizes the capture into a clip.
	Finish(ctx context.Context) (Clip, error)
	// Discard abandons the capture without producing a clip.
	Discard()
}

// Source begins capture sessions, one item at a time.
type Source interface {
	Begin(ctx context.Context, itemID uuid.UUID) (Session, error)
}
