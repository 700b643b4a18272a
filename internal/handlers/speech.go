package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openlingo/openlingo-backend/internal/services"
)

// SpeechHandler is the pronunciation assessment endpoint: a stored
// recording URL plus the target text in, three scores out.
type SpeechHandler struct {
	assessService services.SpeechAssessService
}

func NewSpeechHandler(assessService services.SpeechAssessService) *SpeechHandler {
	return &SpeechHandler{assessService: assessService}
}

func (h *SpeechHandler) Assess(c *gin.Context) {
	var req struct {
		AudioURL   string `json:"audio_url"`
		TargetText string `json:"target_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", errors.New("invalid request body"))
		return
	}
	if strings.TrimSpace(req.AudioURL) == "" || strings.TrimSpace(req.TargetText) == "" {
		RespondError(c, http.StatusBadRequest, "bad_request", errors.New("audio_url and target_text are required"))
		return
	}

	assessment, err := h.assessService.Assess(c.Request.Context(), req.AudioURL, req.TargetText)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "assessment_failed", err)
		return
	}
	RespondOK(c, assessment)
}
