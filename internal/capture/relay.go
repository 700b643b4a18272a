package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/logger"
)

// ErrNoOpenSession is returned when a clip arrives for an item with no
// capture in progress.
var ErrNoOpenSession = errors.New("no open capture session for item")

// Relay is the production Source. Capture itself happens on the
// student's device; the app relays the device's permission state when
// capture starts and delivers the finished clip when it stops. Begin
// consults the relayed permission state, and the session's Finish
// hands back whatever clip the device delivered.
type Relay struct {
	log *logger.Logger

	mu      sync.Mutex
	granted map[uuid.UUID]bool
	open    map[uuid.UUID]*relaySession
}

func NewRelay(log *logger.Logger) *Relay {
	return &Relay{
		log:     log.With("component", "CaptureRelay"),
		granted: make(map[uuid.UUID]bool),
		open:    make(map[uuid.UUID]*relaySession),
	}
}

// SetPermission records the device's microphone permission state as
// relayed by the client before capture starts.
func (r *Relay) SetPermission(itemID uuid.UUID, granted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.granted[itemID] = granted
}

func (r *Relay) Begin(ctx context.Context, itemID uuid.UUID) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if granted, ok := r.granted[itemID]; ok && !granted {
		return nil, ErrPermissionDenied
	}
	if prev, ok := r.open[itemID]; ok {
		prev.discardLocked()
	}
	s := &relaySession{clipCh: make(chan Clip, 1), done: make(chan struct{})}
	r.open[itemID] = s
	return s, nil
}

// Deliver hands the finished clip from the device to the open session
// for the item.
func (r *Relay) Deliver(itemID uuid.UUID, clip Clip) error {
	r.mu.Lock()
	s, ok := r.open[itemID]
	if ok {
		delete(r.open, itemID)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNoOpenSession
	}
	select {
	case s.clipCh <- clip:
		return nil
	case <-s.done:
		return ErrNoOpenSession
	}
}

type relaySession struct {
	clipCh   chan Clip
	done     chan struct{}
	closeOne sync.Once
}

func (s *relaySession) Finish(ctx context.Context) (Clip, error) {
	select {
	case clip := <-s.clipCh:
		return clip, nil
	case <-s.done:
		return Clip{}, errors.New("capture session discarded")
	case <-ctx.Done():
		return Clip{}, ctx.Err()
	}
}

func (s *relaySession) Discard() {
	s.discardLocked()
}

func (s *relaySession) discardLocked() {
	s.closeOne.Do(func() { close(s.done) })
}
