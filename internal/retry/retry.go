// Package retry holds the bounded-attempt backoff policies the
// pipeline coordinators wrap their network operations in. The pipeline
// treats these as opaque: it hands over a zero-argument operation and
// gets back either the operation's final success or a terminal error
// after attempts are exhausted.
package retry

import (
	"context"
	"time"

	"github.com/openlingo/openlingo-backend/internal/logger"
)

// Operation is one attemptable unit of work.
type Operation func(ctx context.Context) error

// Func is the shape the pipeline depends on, so tests can substitute a
// no-backoff policy.
type Func func(ctx context.Context, op Operation) error

type policy struct {
	attempts int
	base     time.Duration
	cap      time.Duration
}

// Three attempts with exponential backoff starting at 500ms, capped at
// 5s.
var (
	audioUploadPolicy = policy{attempts: 3, base: 500 * time.Millisecond, cap: 5 * time.Second}
	aiAnalysisPolicy  = policy{attempts: 3, base: 500 * time.Millisecond, cap: 5 * time.Second}
)

// AudioUpload returns the retry collaborator for recording uploads.
func AudioUpload(log *logger.Logger) Func {
	opLog := log.With("retry", "audio_upload")
	return func(ctx context.Context, op Operation) error {
		return do(ctx, opLog, audioUploadPolicy, op)
	}
}

// AIAnalysis returns the retry collaborator for speech assessment.
func AIAnalysis(log *logger.Logger) Func {
	opLog := log.With("retry", "ai_analysis")
	return func(ctx context.Context, op Operation) error {
		return do(ctx, opLog, aiAnalysisPolicy, op)
	}
}

func do(ctx context.Context, log *logger.Logger, p policy, op Operation) error {
	backoff := p.base
	var last error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err
		if attempt == p.attempts {
			break
		}
		log.Debug("Attempt failed, backing off", "attempt", attempt, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.cap {
			backoff = p.cap
		}
	}
	return last
}
