package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/retry"
)

// SpeechAssessor scores one durable recording against its target text.
type SpeechAssessor interface {
	AssessSpeech(ctx context.Context, audioURL, text string) (*Assessment, error)
}

// Analyzer is the analysis coordinator. Analysis runs only on an
// explicit user action, never automatically on recording completion or
// navigation. It requires a durable recording, allows one in-flight
// analysis per item, and lets analyses for distinct items run
// concurrently.
type Analyzer struct {
	log      *logger.Logger
	store    *Store
	assessor SpeechAssessor
	retry    retry.Func
	notifier Notifier

	wg sync.WaitGroup
}

func NewAnalyzer(log *logger.Logger, store *Store, assessor SpeechAssessor, retryFn retry.Func, notifier Notifier) *Analyzer {
	return &Analyzer{
		log:      log.With("component", "Analyzer"),
		store:    store,
		assessor: assessor,
		retry:    retryFn,
		notifier: notifier,
	}
}

// CanAnalyze reports whether the analyze affordance is shown for the
// item.
func (a *Analyzer) CanAnalyze(itemID uuid.UUID) bool {
	return a.store.CanAnalyze(itemID)
}

// Analyze requests scoring for the item's durable recording and
// returns once the request is accepted; the scoring call itself runs
// in the background and resolves through the store.
func (a *Analyzer) Analyze(itemID uuid.UUID) error {
	generation, snap, err := a.store.BeginAnalysis(itemID)
	if err != nil {
		return err
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(context.Background(), snap, generation)
	}()
	return nil
}

func (a *Analyzer) run(ctx context.Context, snap ItemSnapshot, generation uint64) {
	var result *Assessment
	err := a.retry(ctx, func(ctx context.Context) error {
		res, err := a.assessor.AssessSpeech(ctx, snap.AudioURL, snap.Text)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		analysisErr := &AnalysisError{ItemID: snap.ID, Err: err}
		if ferr := a.store.FailAnalysis(snap.ID, generation); errors.Is(ferr, ErrStaleGeneration) {
			a.log.Debug("Dropping stale analysis failure", "item_id", snap.ID, "generation", generation)
			return
		}
		a.log.Warn("Analysis failed after retries", "item_id", snap.ID, "error", err)
		a.notifier.Notify(snap.ID, EventAnalysisFailed, analysisErr.Error())
		return
	}

	if err := a.store.CompleteAnalysis(snap.ID, generation, *result); err != nil {
		if errors.Is(err, ErrStaleGeneration) {
			a.log.Debug("Dropping stale analysis result", "item_id", snap.ID, "generation", generation)
			return
		}
		a.log.Warn("Could not record analysis result", "item_id", snap.ID, "error", err)
		return
	}
	a.log.Debug("Analysis completed", "item_id", snap.ID)
	a.notifier.Notify(snap.ID, EventAnalysisCompleted, "pronunciation score ready")
}

// Wait blocks until all launched analyses have resolved.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}
