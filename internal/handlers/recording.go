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

	"github.com/openlingo/openlingo-backend/internal/requestdata"
	"github.com/openlingo/openlingo-backend/internal/services"
)

// RecordingHandler is the durable-upload endpoint itself: multipart
// clip in, public URL and progress id out. The pipeline's portal
// client posts here when the backend runs split from the session host.
type RecordingHandler struct {
	recordingService services.RecordingService
}

func NewRecordingHandler(recordingService services.RecordingService) *RecordingHandler {
	return &RecordingHandler{recordingService: recordingService}
}

func (h *RecordingHandler) Upload(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing request identity"))
		return
	}

	itemID, err := uuid.Parse(c.PostForm("item_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_item_id", errors.New("invalid item_id"))
		return
	}
	durationMs, err := strconv.ParseInt(c.PostForm("duration_ms"), 10, 64)
	if err != nil || durationMs < 0 {
		RespondError(c, http.StatusBadRequest, "bad_duration", errors.New("duration_ms is required"))
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "missing_file", errors.New("clip file is required"))
		return
	}
	if fh.Size > maxClipBytes {
		RespondError(c, http.StatusRequestEntityTooLarge, "clip_too_large", fmt.Errorf("clip exceeds %d bytes", maxClipBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_file", err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxClipBytes+1))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_file", err)
		return
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	stored, err := h.recordingService.StoreRecording(
		c.Request.Context(),
		rd.UserID,
		itemID,
		data,
		mimeType,
		time.Duration(durationMs)*time.Millisecond,
	)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "store_failed", err)
		return
	}
	RespondOK(c, stored)
}
