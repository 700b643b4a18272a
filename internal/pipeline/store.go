package pipeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
)

// Store is the item state store: the single source of truth for every
// item's recording lifecycle. It owns all state transitions; the
// coordinators and the UI only go through it.
//
// Each item carries a monotonic generation counter. Starting a new
// recording or deleting the current one bumps the generation, and an
// async result initiated under an older generation is refused with
// ErrStaleGeneration instead of overwriting the newer recording.
// Updates are item-scoped: a resolution for one item never reads or
// blocks on another item's record beyond the map lock.
type Store struct {
	mu    sync.Mutex
	items map[uuid.UUID]*itemRecord
	order []uuid.UUID
}

type itemRecord struct {
	id         uuid.UUID
	position   int
	text       string
	state      ItemState
	clip       *capture.Clip
	audioURL   string
	progressID int64
	assessment *Assessment
	generation uint64

	uploadInFlight   bool
	analysisInFlight bool
}

func NewStore(seed []Item) *Store {
	s := &Store{items: make(map[uuid.UUID]*itemRecord, len(seed))}
	for i, it := range seed {
		rec := &itemRecord{
			id:       it.ID,
			position: i,
			text:     it.Text,
			state:    StateEmpty,
		}
		if it.AudioURL != "" {
			rec.state = StateDurable
			rec.audioURL = it.AudioURL
			rec.progressID = it.ProgressID
			if it.Assessment != nil {
				a := *it.Assessment
				rec.state = StateDurableScored
				rec.assessment = &a
			}
		}
		s.items[it.ID] = rec
		s.order = append(s.order, it.ID)
	}
	return s
}

// Snapshot returns a read-only copy of one item's state.
func (s *Store) Snapshot(itemID uuid.UUID) (ItemSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ItemSnapshot{}, ErrItemNotFound
	}
	return rec.snapshot(), nil
}

// Snapshots returns all items in roster order.
func (s *Store) Snapshots() []ItemSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ItemSnapshot, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].snapshot())
	}
	return out
}

// BeginRecording supersedes whatever the item holds: the prior
// reference and assessment are cleared and the generation is bumped so
// that any in-flight upload or analysis result for the old recording
// is dropped on arrival. Returns the new generation, which the
// recording attempt and its upload carry.
func (s *Store) BeginRecording(itemID uuid.UUID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return 0, ErrItemNotFound
	}
	rec.generation++
	rec.state = StateEmpty
	rec.clip = nil
	rec.audioURL = ""
	rec.progressID = 0
	rec.assessment = nil
	rec.uploadInFlight = false
	rec.analysisInFlight = false
	return rec.generation, nil
}

// AcceptClip transitions the item to ephemeral-local after a validated
// stop-recording.
func (s *Store) AcceptClip(itemID uuid.UUID, generation uint64, clip capture.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	c := clip
	rec.state = StateEphemeral
	rec.clip = &c
	return nil
}

// MarkUploadStarted reserves the item's single upload slot. At most
// one upload may be in flight per item.
func (s *Store) MarkUploadStarted(itemID uuid.UUID, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	if rec.uploadInFlight {
		return ErrUploadInFlight
	}
	rec.uploadInFlight = true
	return nil
}

// CompleteUpload transitions ephemeral to durable. A result carrying a
// superseded generation is refused and must be discarded by the
// caller.
func (s *Store) CompleteUpload(itemID uuid.UUID, generation uint64, audioURL string, progressID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	rec.state = StateDurable
	rec.clip = nil
	rec.audioURL = audioURL
	rec.progressID = progressID
	rec.uploadInFlight = false
	return nil
}

// FailUpload records a terminal upload failure. The item stays
// ephemeral and becomes re-uploadable by re-recording.
func (s *Store) FailUpload(itemID uuid.UUID, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	rec.uploadInFlight = false
	return nil
}

// CanAnalyze reports whether the analyze affordance is present: true
// exactly when the item holds a durable recording.
func (s *Store) CanAnalyze(itemID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return false
	}
	return rec.state.Submittable()
}

// BeginAnalysis reserves the item's single analysis slot and returns
// the generation plus a snapshot carrying the audio URL and target
// text the scoring call needs.
func (s *Store) BeginAnalysis(itemID uuid.UUID) (uint64, ItemSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return 0, ItemSnapshot{}, ErrItemNotFound
	}
	if !rec.state.Submittable() {
		return 0, ItemSnapshot{}, ErrNotUploaded
	}
	if rec.analysisInFlight {
		return 0, ItemSnapshot{}, ErrAnalysisInFlight
	}
	rec.analysisInFlight = true
	return rec.generation, rec.snapshot(), nil
}

// CompleteAnalysis attaches the assessment. Stale results are refused.
func (s *Store) CompleteAnalysis(itemID uuid.UUID, generation uint64, a Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	if !rec.state.Submittable() {
		return ErrNotUploaded
	}
	assessment := a
	rec.state = StateDurableScored
	rec.assessment = &assessment
	rec.analysisInFlight = false
	return nil
}

// FailAnalysis records a terminal analysis failure. The durable
// recording and the analyze affordance both remain.
func (s *Store) FailAnalysis(itemID uuid.UUID, generation uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if rec.generation != generation {
		return ErrStaleGeneration
	}
	rec.analysisInFlight = false
	return nil
}

// Delete clears a durable recording and its assessment, returning the
// item to empty. The generation bump invalidates any analysis still in
// flight for the deleted recording.
func (s *Store) Delete(itemID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	if !rec.state.Submittable() {
		return ErrNotDeletable
	}
	rec.generation++
	rec.state = StateEmpty
	rec.clip = nil
	rec.audioURL = ""
	rec.progressID = 0
	rec.assessment = nil
	rec.uploadInFlight = false
	rec.analysisInFlight = false
	return nil
}

func (r *itemRecord) snapshot() ItemSnapshot {
	snap := ItemSnapshot{
		ID:         r.id,
		Position:   r.position,
		Text:       r.text,
		State:      r.state,
		AudioURL:   r.audioURL,
		ProgressID: r.progressID,
		Generation: r.generation,
	}
	if r.clip != nil {
		c := *r.clip
		snap.Clip = &c
	}
	if r.assessment != nil {
		a := *r.assessment
		snap.Assessment = &a
	}
	return snap
}
