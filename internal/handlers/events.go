package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/requestdata"
	"github.com/openlingo/openlingo-backend/internal/services"
	"github.com/openlingo/openlingo-backend/internal/sse"
)

// EventsHandler streams pipeline events for one assignment session
// over SSE.
type EventsHandler struct {
	hub *sse.SSEHub
}

func NewEventsHandler(hub *sse.SSEHub) *EventsHandler {
	return &EventsHandler{hub: hub}
}

func (h *EventsHandler) Stream(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing request identity"))
		return
	}
	assignmentID, err := uuid.Parse(c.Query("assignment_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_assignment_id", errors.New("invalid assignment_id"))
		return
	}

	client := h.hub.NewSSEClient(rd.UserID)
	h.hub.AddChannel(client, services.SessionChannel(rd.UserID, assignmentID))
	defer h.hub.CloseClient(client)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
