// Package pipeline implements the per-item audio submission pipeline:
// capture, durable upload, AI pronunciation analysis, progress
// aggregation and submission gating, coordinated through a keyed item
// state store with per-item generation tokens.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/retry"
)

// Config wires one pipeline instance for one student's assignment.
type Config struct {
	Items    []Item
	Source   capture.Source
	Policy   ClipPolicy
	Uploader RecordingUploader
	Assessor SpeechAssessor
	Submit   SubmitFunc
	Notifier Notifier

	// UploadRetry and AnalysisRetry default to the bounded-backoff
	// collaborators in the retry package.
	UploadRetry   retry.Func
	AnalysisRetry retry.Func

	// PreviewMode disables submission entirely regardless of item
	// state.
	PreviewMode bool
}

// Pipeline bundles the coordinators around one shared item state
// store.
type Pipeline struct {
	log *logger.Logger

	Store      *Store
	Recorder   *Recorder
	Uploader   *Uploader
	Analyzer   *Analyzer
	Gatekeeper *Gatekeeper

	notifier Notifier
}

func New(log *logger.Logger, cfg Config) *Pipeline {
	plog := log.With("component", "Pipeline")

	notifier := cfg.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	policy := cfg.Policy
	if policy.MinDuration == 0 && policy.MinBytes == 0 && len(policy.AllowedMimeTypes) == 0 {
		policy = DefaultClipPolicy()
	}
	uploadRetry := cfg.UploadRetry
	if uploadRetry == nil {
		uploadRetry = retry.AudioUpload(log)
	}
	analysisRetry := cfg.AnalysisRetry
	if analysisRetry == nil {
		analysisRetry = retry.AIAnalysis(log)
	}

	store := NewStore(cfg.Items)
	uploader := NewUploader(log, store, cfg.Uploader, uploadRetry, notifier)
	recorder := NewRecorder(log, store, cfg.Source, policy, uploader, notifier)
	analyzer := NewAnalyzer(log, store, cfg.Assessor, analysisRetry, notifier)
	gatekeeper := NewGatekeeper(log, store, cfg.Submit, notifier, cfg.PreviewMode)

	return &Pipeline{
		log:        plog,
		Store:      store,
		Recorder:   recorder,
		Uploader:   uploader,
		Analyzer:   analyzer,
		Gatekeeper: gatekeeper,
		notifier:   notifier,
	}
}

func (p *Pipeline) StartRecording(ctx context.Context, itemID uuid.UUID) error {
	return p.Recorder.StartRecording(ctx, itemID)
}

func (p *Pipeline) StopRecording(ctx context.Context, itemID uuid.UUID) error {
	return p.Recorder.StopRecording(ctx, itemID)
}

func (p *Pipeline) Analyze(itemID uuid.UUID) error {
	return p.Analyzer.Analyze(itemID)
}

func (p *Pipeline) CanAnalyze(itemID uuid.UUID) bool {
	return p.Analyzer.CanAnalyze(itemID)
}

// Delete clears the item's durable recording and assessment; the
// recording affordance reappears and the score affordances disappear.
func (p *Pipeline) Delete(itemID uuid.UUID) error {
	if err := p.Store.Delete(itemID); err != nil {
		return err
	}
	p.notifier.Notify(itemID, EventRecordingDeleted, "recording deleted")
	return nil
}

func (p *Pipeline) Progress() Progress {
	return p.Store.Progress()
}

func (p *Pipeline) TrySubmit(ctx context.Context) error {
	return p.Gatekeeper.TrySubmit(ctx)
}

func (p *Pipeline) Snapshot(itemID uuid.UUID) (ItemSnapshot, error) {
	return p.Store.Snapshot(itemID)
}

func (p *Pipeline) Snapshots() []ItemSnapshot {
	return p.Store.Snapshots()
}

// Wait blocks until every launched upload and analysis has resolved.
// Used by tests and graceful shutdown.
func (p *Pipeline) Wait() {
	p.Uploader.Wait()
	p.Analyzer.Wait()
}
