package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/pipeline"
	"github.com/openlingo/openlingo-backend/internal/requestdata"
	"github.com/openlingo/openlingo-backend/internal/services"
)

// maxClipBytes caps a single uploaded clip. Classroom recordings are
// short; anything past this is a client bug.
const maxClipBytes = 25 << 20

// ActivityHandler exposes the per-item recording pipeline over HTTP.
// Every route resolves the caller's session for the assignment first,
// then drives the corresponding pipeline operation.
type ActivityHandler struct {
	activityService services.ActivityService
}

func NewActivityHandler(activityService services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activityService: activityService}
}

func (h *ActivityHandler) session(c *gin.Context) (*services.ActivitySession, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing request identity"))
		return nil, false
	}
	assignmentID, err := uuid.Parse(c.Param("assignmentID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_assignment_id", errors.New("invalid assignment id"))
		return nil, false
	}
	sess, err := h.activityService.Session(c.Request.Context(), rd.UserID, assignmentID)
	if err != nil {
		RespondError(c, http.StatusNotFound, "session_unavailable", err)
		return nil, false
	}
	return sess, true
}

func itemIDParam(c *gin.Context) (uuid.UUID, bool) {
	itemID, err := uuid.Parse(c.Param("itemID"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_item_id", errors.New("invalid item id"))
		return uuid.Nil, false
	}
	return itemID, true
}

type itemView struct {
	ItemID     uuid.UUID            `json:"item_id"`
	Position   int                  `json:"position"`
	Text       string               `json:"text"`
	State      string               `json:"state"`
	AudioURL   string               `json:"audio_url,omitempty"`
	ProgressID int64                `json:"progress_id,omitempty"`
	Assessment *pipeline.Assessment `json:"assessment,omitempty"`
	CanAnalyze bool                 `json:"can_analyze"`
}

func itemViewFromSnapshot(sess *services.ActivitySession, snap pipeline.ItemSnapshot) itemView {
	return itemView{
		ItemID:     snap.ID,
		Position:   snap.Position,
		Text:       snap.Text,
		State:      snap.State.String(),
		AudioURL:   snap.AudioURL,
		ProgressID: snap.ProgressID,
		Assessment: snap.Assessment,
		CanAnalyze: sess.Pipeline.CanAnalyze(snap.ID),
	}
}

// ListItems returns every item's current state for the assignment.
func (h *ActivityHandler) ListItems(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	snaps := sess.Pipeline.Snapshots()
	views := make([]itemView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, itemViewFromSnapshot(sess, snap))
	}
	RespondOK(c, gin.H{"items": views})
}

// StartRecording relays the device permission state and opens a
// capture session for the item. Starting over an existing recording
// supersedes it.
func (h *ActivityHandler) StartRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}

	var req struct {
		PermissionGranted *bool `json:"permission_granted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PermissionGranted == nil {
		RespondError(c, http.StatusBadRequest, "bad_request", errors.New("permission_granted is required"))
		return
	}

	sess.Relay.SetPermission(itemID, *req.PermissionGranted)
	if err := sess.Pipeline.StartRecording(c.Request.Context(), itemID); err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"recording": true})
}

// StopRecording receives the finished clip, closes the capture
// session, and kicks off the durable upload.
func (h *ActivityHandler) StopRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}

	clip, err := clipFromMultipart(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_clip", err)
		return
	}

	if err := sess.Relay.Deliver(itemID, clip); err != nil {
		respondPipelineError(c, err)
		return
	}
	if err := sess.Pipeline.StopRecording(c.Request.Context(), itemID); err != nil {
		respondPipelineError(c, err)
		return
	}

	snap, err := sess.Pipeline.Snapshot(itemID)
	if err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, itemViewFromSnapshot(sess, snap))
}

func clipFromMultipart(c *gin.Context) (capture.Clip, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return capture.Clip{}, fmt.Errorf("missing clip file: %w", err)
	}
	if fh.Size > maxClipBytes {
		return capture.Clip{}, fmt.Errorf("clip exceeds %d bytes", maxClipBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return capture.Clip{}, fmt.Errorf("open clip file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxClipBytes+1))
	if err != nil {
		return capture.Clip{}, fmt.Errorf("read clip file: %w", err)
	}
	if len(data) > maxClipBytes {
		return capture.Clip{}, fmt.Errorf("clip exceeds %d bytes", maxClipBytes)
	}

	durationMs, err := strconv.ParseInt(c.PostForm("duration_ms"), 10, 64)
	if err != nil || durationMs < 0 {
		return capture.Clip{}, errors.New("duration_ms is required")
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	return capture.Clip{
		Data:     data,
		MimeType: mimeType,
		Duration: time.Duration(durationMs) * time.Millisecond,
	}, nil
}

// DeleteRecording removes the item's durable recording.
func (h *ActivityHandler) DeleteRecording(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}
	if err := sess.DeleteRecording(c.Request.Context(), itemID); err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// Analyze launches pronunciation analysis for a durable item.
func (h *ActivityHandler) Analyze(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}
	if err := sess.Pipeline.Analyze(itemID); err != nil {
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"analyzing": true})
}

// Progress returns the completed-over-total counter and the submit
// affordance derived from it.
func (h *ActivityHandler) Progress(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	p := sess.Pipeline.Progress()
	RespondOK(c, gin.H{
		"completed":      p.Completed,
		"total":          p.Total,
		"display":        p.Display(),
		"complete":       p.Complete(),
		"submit_opacity": p.SubmitOpacity(),
	})
}

// Submit runs the submission gate and, when every item passes,
// finalizes the assignment.
func (h *ActivityHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Pipeline.TrySubmit(c.Request.Context()); err != nil {
		var sve *pipeline.SubmissionValidationError
		if errors.As(err, &sve) {
			violations := make([]gin.H, 0, len(sve.Violations))
			for _, v := range sve.Violations {
				violations = append(violations, gin.H{
					"item_id":  v.ItemID,
					"position": v.Position,
					"message":  v.Message(),
				})
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"submitted":  false,
				"violations": violations,
			})
			return
		}
		respondPipelineError(c, err)
		return
	}
	RespondOK(c, gin.H{"submitted": true})
}

func respondPipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrItemNotFound):
		RespondError(c, http.StatusNotFound, "item_not_found", err)
	case errors.Is(err, capture.ErrPermissionDenied):
		RespondError(c, http.StatusForbidden, "permission_denied", err)
	case errors.Is(err, capture.ErrNoOpenSession), errors.Is(err, pipeline.ErrNotRecording):
		RespondError(c, http.StatusConflict, "not_recording", err)
	case errors.Is(err, pipeline.ErrUploadInFlight), errors.Is(err, pipeline.ErrAnalysisInFlight):
		RespondError(c, http.StatusConflict, "operation_in_flight", err)
	case errors.Is(err, pipeline.ErrNotUploaded), errors.Is(err, pipeline.ErrNotDeletable):
		RespondError(c, http.StatusConflict, "invalid_state", err)
	case errors.Is(err, pipeline.ErrSubmissionDisabled):
		RespondError(c, http.StatusForbidden, "submission_disabled", err)
	default:
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			RespondError(c, http.StatusBadRequest, "invalid_clip", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
