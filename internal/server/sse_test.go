package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/ramparte/deployotron/internal/orchestrator"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestHubSubscribeAndBroadcast(t *testing.T) {
	hub := newTestHub()

	ch := hub.Subscribe("widget")
	defer hub.Unsubscribe("widget", ch)

	hub.Broadcast("widget", []byte("hello"))

	select {
	case payload := <-ch:
		if string(payload) != "hello" {
			t.Errorf("payload = %q", payload)
		}
	default:
		t.Fatal("no payload delivered")
	}
}

func TestHubBroadcastOnlyToMatchingProject(t *testing.T) {
	hub := newTestHub()

	widget := hub.Subscribe("widget")
	gadget := hub.Subscribe("gadget")
	defer hub.Unsubscribe("widget", widget)
	defer hub.Unsubscribe("gadget", gadget)

	hub.Broadcast("widget", []byte("for widget"))

	select {
	case <-gadget:
		t.Error("gadget subscriber received widget event")
	default:
	}

	select {
	case <-widget:
	default:
		t.Error("widget subscriber received nothing")
	}
}

func TestHubDropsWhenSubscriberFull(t *testing.T) {
	hub := newTestHub()

	ch := hub.Subscribe("widget")
	defer hub.Unsubscribe("widget", ch)

	// Overfill the subscriber buffer; the hub must not block.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Broadcast("widget", []byte("x"))
	}

	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered = %d, expected %d", got, subscriberBuffer)
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := newTestHub()

	ch := hub.Subscribe("widget")
	hub.Unsubscribe("widget", ch)

	if _, ok := <-ch; ok {
		t.Error("channel not closed after Unsubscribe")
	}
	if hub.SubscriberCount("widget") != 0 {
		t.Errorf("SubscriberCount = %d", hub.SubscriberCount("widget"))
	}

	// Double unsubscribe is a no-op.
	hub.Unsubscribe("widget", ch)
}

func TestHubPublishSerializesEvent(t *testing.T) {
	hub := newTestHub()

	ch := hub.Subscribe("widget")
	defer hub.Unsubscribe("widget", ch)

	hub.Publish(orchestrator.Event{
		DeploymentID: "dep-1",
		Project:      "widget",
		Step:         "build_image",
		Percent:      50,
		Message:      "Image widget:abcdef12 built",
	})

	payload := <-ch
	var event orchestrator.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if event.Step != "build_image" || event.Percent != 50 {
		t.Errorf("event = %+v", event)
	}
}
