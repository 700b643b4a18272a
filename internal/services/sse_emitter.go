package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/logger"
	"github.com/openlingo/openlingo-backend/internal/pipeline"
	"github.com/openlingo/openlingo-backend/internal/sse"
)

// SessionChannel is the SSE channel for one student's work on one
// assignment.
func SessionChannel(userID, assignmentID uuid.UUID) string {
	return fmt.Sprintf("activity:%s:%s", userID.String(), assignmentID.String())
}

// sseEmitter bridges pipeline notifications onto the event stream.
// When a redis bus is configured events go through it so every
// replica's hub sees them; otherwise they hit the local hub directly.
type sseEmitter struct {
	log     *logger.Logger
	hub     *sse.SSEHub
	bus     SSEBus
	channel string
}

func NewPipelineEmitter(log *logger.Logger, hub *sse.SSEHub, bus SSEBus, userID, assignmentID uuid.UUID) pipeline.Notifier {
	return &sseEmitter{
		log:     log.With("component", "PipelineEmitter"),
		hub:     hub,
		bus:     bus,
		channel: SessionChannel(userID, assignmentID),
	}
}

func (e *sseEmitter) Notify(itemID uuid.UUID, event pipeline.Event, message string) {
	msg := sse.SSEMessage{
		Channel: e.channel,
		Event:   string(event),
		Data: map[string]any{
			"item_id": itemID.String(),
			"message": message,
		},
	}
	if e.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.bus.Publish(ctx, msg); err != nil {
			e.log.Warn("Failed to publish pipeline event", "event", event, "error", err)
			e.hub.Broadcast(msg)
		}
		return
	}
	e.hub.Broadcast(msg)
}
