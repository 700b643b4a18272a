package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/clients/portal"
	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/pipeline"
	"github.com/openlingo/openlingo-backend/internal/repos"
	"github.com/openlingo/openlingo-backend/internal/requestdata"
	"github.com/openlingo/openlingo-backend/internal/sse"
	"github.com/openlingo/openlingo-backend/internal/types"
	"github.com/openlingo/openlingo-backend/internal/utils"
)

// ActivitySession is one student's live pipeline over the recordable
// activities of one assignment. Sessions are built lazily on first
// touch and reused until the process restarts; the item state store is
// reseeded from Postgres on rebuild, so a restart only loses clips
// that were never uploaded.
type ActivitySession struct {
	UserID       uuid.UUID
	AssignmentID uuid.UUID
	ActivityIDs  []uuid.UUID
	Pipeline     *pipeline.Pipeline
	Relay        *capture.Relay
	Recordings   RecordingService
	tokens       *sessionTokenSource
}

// DeleteRecording clears the item both in the live pipeline and in
// durable storage.
func (sess *ActivitySession) DeleteRecording(ctx context.Context, itemID uuid.UUID) error {
	if err := sess.Pipeline.Delete(itemID); err != nil {
		return err
	}
	if sess.Recordings != nil {
		if err := sess.Recordings.DeleteRecordings(ctx, itemID); err != nil {
			return err
		}
	}
	return nil
}

func (sess *ActivitySession) refreshToken(ctx context.Context) {
	if sess.tokens == nil {
		return
	}
	if rd := requestdata.GetRequestData(ctx); rd != nil && rd.TokenString != "" {
		sess.tokens.set(rd.TokenString)
	}
}

// sessionTokenSource carries the caller's most recent bearer token to
// the portal client. It is updated on every session lookup, never
// cached past the request that provided it being superseded.
type sessionTokenSource struct {
	mu    sync.Mutex
	token string
}

func (t *sessionTokenSource) set(token string) {
	t.mu.Lock()
	t.token = token
	t.mu.Unlock()
}

func (t *sessionTokenSource) AccessToken(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == "" {
		return "", fmt.Errorf("no access token available for portal call")
	}
	return t.token, nil
}

// ActivityService owns session construction and lookup.
type ActivityService interface {
	Session(ctx context.Context, userID, assignmentID uuid.UUID) (*ActivitySession, error)
	DropSession(userID, assignmentID uuid.UUID)
	WaitAll()
}

type sessionKey struct {
	userID       uuid.UUID
	assignmentID uuid.UUID
}

type activityService struct {
	log           *logger.Logger
	db            *gorm.DB
	activityRepo  repos.ActivityRepo
	itemRepo      repos.ActivityItemRepo
	recordings    RecordingService
	assessor      SpeechAssessService
	hub           *sse.SSEHub
	bus           SSEBus
	portalBaseURL string

	mu       sync.Mutex
	sessions map[sessionKey]*ActivitySession
}

func NewActivityService(
	log *logger.Logger,
	db *gorm.DB,
	activityRepo repos.ActivityRepo,
	itemRepo repos.ActivityItemRepo,
	recordings RecordingService,
	assessor SpeechAssessService,
	hub *sse.SSEHub,
	bus SSEBus,
) ActivityService {
	return &activityService{
		log:           log.With("service", "ActivityService"),
		db:            db,
		activityRepo:  activityRepo,
		itemRepo:      itemRepo,
		recordings:    recordings,
		assessor:      assessor,
		hub:           hub,
		bus:           bus,
		portalBaseURL: utils.GetEnv("PORTAL_API_BASE_URL", "", log),
		sessions:      make(map[sessionKey]*ActivitySession),
	}
}

func (s *activityService) Session(ctx context.Context, userID, assignmentID uuid.UUID) (*ActivitySession, error) {
	key := sessionKey{userID: userID, assignmentID: assignmentID}

	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		sess.refreshToken(ctx)
		return sess, nil
	}
	s.mu.Unlock()

	sess, err := s.buildSession(ctx, userID, assignmentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[key]; ok {
		existing.refreshToken(ctx)
		return existing, nil
	}
	sess.refreshToken(ctx)
	s.sessions[key] = sess
	return sess, nil
}

func (s *activityService) DropSession(userID, assignmentID uuid.UUID) {
	key := sessionKey{userID: userID, assignmentID: assignmentID}
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	if ok {
		sess.Pipeline.Wait()
	}
}

func (s *activityService) WaitAll() {
	s.mu.Lock()
	sessions := make([]*ActivitySession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Pipeline.Wait()
	}
}

func (s *activityService) buildSession(ctx context.Context, userID, assignmentID uuid.UUID) (*ActivitySession, error) {
	activities, err := s.activityRepo.GetByAssignmentID(ctx, nil, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("load assignment activities: %w", err)
	}

	recordable := []*types.Activity{}
	for _, a := range activities {
		if a != nil && a.RequiresRecording() {
			recordable = append(recordable, a)
		}
	}
	if len(recordable) == 0 {
		return nil, fmt.Errorf("assignment %s has no recordable activities", assignmentID)
	}
	sort.Slice(recordable, func(i, j int) bool { return recordable[i].Position < recordable[j].Position })

	activityIDs := make([]uuid.UUID, 0, len(recordable))
	items := []pipeline.Item{}
	preview := true
	for _, a := range recordable {
		activityIDs = append(activityIDs, a.ID)
		if a.Status == types.ActivityStatusAssigned {
			preview = false
		}
		for _, it := range a.Items {
			items = append(items, seedItem(it))
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("assignment %s has no recordable items", assignmentID)
	}

	relay := capture.NewRelay(s.log)
	tokens := &sessionTokenSource{}

	uploader, assessor, err := s.collaborators(userID, tokens)
	if err != nil {
		return nil, err
	}

	pipe := pipeline.New(s.log, pipeline.Config{
		Items:       items,
		Source:      relay,
		Uploader:    uploader,
		Assessor:    assessor,
		Submit:      s.submitFunc(activityIDs),
		Notifier:    NewPipelineEmitter(s.log, s.hub, s.bus, userID, assignmentID),
		PreviewMode: preview,
	})

	s.log.Info("Activity session built",
		"user_id", userID.String(),
		"assignment_id", assignmentID.String(),
		"items", len(items),
		"preview", preview,
	)
	return &ActivitySession{
		UserID:       userID,
		AssignmentID: assignmentID,
		ActivityIDs:  activityIDs,
		Pipeline:     pipe,
		Relay:        relay,
		Recordings:   s.recordings,
		tokens:       tokens,
	}, nil
}

// collaborators picks the upload and assessment backends. With
// PORTAL_API_BASE_URL set both go through the remote portal; otherwise
// the in-process services are used directly.
func (s *activityService) collaborators(userID uuid.UUID, tokens *sessionTokenSource) (pipeline.RecordingUploader, pipeline.SpeechAssessor, error) {
	if s.portalBaseURL != "" {
		client, err := portal.NewClient(s.log, s.portalBaseURL, tokens)
		if err != nil {
			return nil, nil, fmt.Errorf("portal client: %w", err)
		}
		return client, client, nil
	}
	return &recordingUploaderAdapter{svc: s.recordings, userID: userID},
		&speechAssessorAdapter{svc: s.assessor},
		nil
}

// submitFunc persists any assessments still in memory and flips the
// recordable activities to submitted. It only runs once the gate has
// verified every item is durable.
func (s *activityService) submitFunc(activityIDs []uuid.UUID) pipeline.SubmitFunc {
	return func(ctx context.Context, items []pipeline.ItemSnapshot) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, it := range items {
				if it.Assessment == nil {
					continue
				}
				err := s.itemRepo.SetAssessment(ctx, tx, it.ID,
					it.Assessment.AccuracyScore,
					it.Assessment.FluencyScore,
					it.Assessment.PronunciationScore,
				)
				if err != nil {
					return fmt.Errorf("persist assessment for item %s: %w", it.ID, err)
				}
			}
			return s.activityRepo.UpdateStatus(ctx, tx, activityIDs, types.ActivityStatusSubmitted)
		})
	}
}

type recordingUploaderAdapter struct {
	svc    RecordingService
	userID uuid.UUID
}

func (a *recordingUploaderAdapter) UploadRecording(ctx context.Context, itemID uuid.UUID, clip capture.Clip) (*pipeline.UploadResult, error) {
	stored, err := a.svc.StoreRecording(ctx, a.userID, itemID, clip.Data, clip.MimeType, clip.Duration)
	if err != nil {
		return nil, err
	}
	return &pipeline.UploadResult{AudioURL: stored.AudioURL, ProgressID: stored.ProgressID}, nil
}

type speechAssessorAdapter struct {
	svc SpeechAssessService
}

func (a *speechAssessorAdapter) AssessSpeech(ctx context.Context, audioURL, text string) (*pipeline.Assessment, error) {
	return a.svc.Assess(ctx, audioURL, text)
}

func seedItem(it types.ActivityItem) pipeline.Item {
	seed := pipeline.Item{
		ID:       it.ID,
		Text:     it.Text,
		AudioURL: it.AudioURL,
	}
	if it.ProgressID != nil {
		seed.ProgressID = *it.ProgressID
	}
	if it.AccuracyScore != nil && it.FluencyScore != nil && it.PronunciationScore != nil {
		seed.Assessment = &pipeline.Assessment{
			AccuracyScore:      *it.AccuracyScore,
			FluencyScore:       *it.FluencyScore,
			PronunciationScore: *it.PronunciationScore,
		}
	}
	return seed
}
