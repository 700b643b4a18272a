package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/retry"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// noBackoff keeps the three-attempt shape without sleeping between
// attempts.
func noBackoff() retry.Func {
	return func(ctx context.Context, op retry.Operation) error {
		var last error
		for i := 0; i < 3; i++ {
			if last = op(ctx); last == nil {
				return nil
			}
		}
		return last
	}
}

func validClip() capture.Clip {
	return capture.Clip{
		Data:     make([]byte, 4096),
		MimeType: "audio/webm",
		Duration: 3 * time.Second,
	}
}

type fakeSession struct {
	clip capture.Clip
	err  error
}

func (s *fakeSession) Finish(context.Context) (capture.Clip, error) {
	if s.err != nil {
		return capture.Clip{}, s.err
	}
	return s.clip, nil
}

func (s *fakeSession) Discard() {}

type fakeSource struct {
	mu     sync.Mutex
	denied map[uuid.UUID]bool
	clips  map[uuid.UUID]capture.Clip
	errs   map[uuid.UUID]error
	begins int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		denied: make(map[uuid.UUID]bool),
		clips:  make(map[uuid.UUID]capture.Clip),
		errs:   make(map[uuid.UUID]error),
	}
}

func (f *fakeSource) Begin(_ context.Context, itemID uuid.UUID) (capture.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.denied[itemID] {
		return nil, capture.ErrPermissionDenied
	}
	return &fakeSession{clip: f.clips[itemID], err: f.errs[itemID]}, nil
}

type fakeUploader struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	gate     chan struct{}
}

func (f *fakeUploader) UploadRecording(_ context.Context, itemID uuid.UUID, _ capture.Clip) (*UploadResult, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	failing := n <= f.failures
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failing {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("upload attempt %d failed", n)
	}
	return &UploadResult{
		AudioURL:   "https://cdn.example.com/recordings/" + itemID.String() + ".webm",
		ProgressID: int64(n),
	}, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAssessor struct {
	mu       sync.Mutex
	calls    int
	failures int
	result   Assessment
	gate     chan struct{}
}

func (f *fakeAssessor) AssessSpeech(context.Context, string, string) (*Assessment, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	failing := n <= f.failures
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failing {
		return nil, fmt.Errorf("assessment attempt %d failed", n)
	}
	a := f.result
	return &a, nil
}

func (f *fakeAssessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type notified struct {
	itemID  uuid.UUID
	event   Event
	message string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notified
}

func (n *recordingNotifier) Notify(itemID uuid.UUID, event Event, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notified{itemID: itemID, event: event, message: message})
}

func (n *recordingNotifier) count(event Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.event == event {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) messagesFor(event Event) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e.message)
		}
	}
	return out
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	err   error
	items []ItemSnapshot
}

func (f *fakeSubmitter) submit(_ context.Context, items []ItemSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.items = items
	return f.err
}

type testEnv struct {
	pipe     *Pipeline
	source   *fakeSource
	uploader *fakeUploader
	assessor *fakeAssessor
	notifier *recordingNotifier
	submit   *fakeSubmitter
}

func newTestEnv(t *testing.T, items []Item) *testEnv {
	t.Helper()
	env := &testEnv{
		source:   newFakeSource(),
		uploader: &fakeUploader{},
		assessor: &fakeAssessor{result: Assessment{AccuracyScore: 91.5, FluencyScore: 84.0, PronunciationScore: 88.2}},
		notifier: &recordingNotifier{},
		submit:   &fakeSubmitter{},
	}
	env.pipe = New(testLogger(t), Config{
		Items:         items,
		Source:        env.source,
		Uploader:      env.uploader,
		Assessor:      env.assessor,
		Submit:        env.submit.submit,
		Notifier:      env.notifier,
		UploadRetry:   noBackoff(),
		AnalysisRetry: noBackoff(),
	})
	return env
}

// recordAndUpload drives one item from empty through durable.
func (env *testEnv) recordAndUpload(t *testing.T, itemID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	env.source.clips[itemID] = validClip()
	if err := env.pipe.StartRecording(ctx, itemID); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := env.pipe.StopRecording(ctx, itemID); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	env.pipe.Uploader.Wait()
}

func mustSnapshot(t *testing.T, env *testEnv, itemID uuid.UUID) ItemSnapshot {
	t.Helper()
	snap, err := env.pipe.Snapshot(itemID)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}
