package sse

import (
	"testing"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/logger"
)

func testHub(t *testing.T) *SSEHub {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewSSEHub(log)
}

func TestBroadcastReachesSubscribedChannel(t *testing.T) {
	hub := testHub(t)
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "activity:a:b")

	hub.Broadcast(SSEMessage{Channel: "activity:a:b", Event: "RecordingUploaded"})
	select {
	case msg := <-client.Outbound:
		if msg.Event != "RecordingUploaded" {
			t.Fatalf("event = %q", msg.Event)
		}
	default:
		t.Fatalf("message not delivered")
	}

	hub.Broadcast(SSEMessage{Channel: "activity:other", Event: "RecordingUploaded"})
	select {
	case msg := <-client.Outbound:
		t.Fatalf("received message for foreign channel: %+v", msg)
	default:
	}
}

func TestRemoveChannelStopsDelivery(t *testing.T) {
	hub := testHub(t)
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "ch")
	hub.RemoveChannel(client, "ch")

	hub.Broadcast(SSEMessage{Channel: "ch", Event: "x"})
	select {
	case <-client.Outbound:
		t.Fatalf("received message after unsubscribe")
	default:
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	hub := testHub(t)
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, "ch")

	for i := 0; i < cap(client.Outbound)+5; i++ {
		hub.Broadcast(SSEMessage{Channel: "ch", Event: "x"})
	}
	if got := len(client.Outbound); got != cap(client.Outbound) {
		t.Fatalf("outbound len = %d, want %d", got, cap(client.Outbound))
	}
}
