package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ramparte/deployotron/internal/orchestrator"
)

const (
	subscriberBuffer = 16
	sseHeartbeat     = 25 * time.Second
)

// Hub fans progress events out to Server-Sent Events subscribers, keyed by
// project. Slow subscribers lose events rather than block the hub.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
	log  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[chan []byte]struct{}),
		log:  log,
	}
}

// Subscribe registers a new subscriber for a project's events.
func (h *Hub) Subscribe(project string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[project] == nil {
		h.subs[project] = make(map[chan []byte]struct{})
	}
	h.subs[project][ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(project string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[project]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
			if len(set) == 0 {
				delete(h.subs, project)
			}
		}
	}
}

// Broadcast sends a payload to every subscriber of a project without
// blocking. Full subscriber buffers drop the payload.
func (h *Hub) Broadcast(project string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[project] {
		select {
		case ch <- payload:
		default:
			h.log.Warn("sse subscriber too slow, dropping event", "project", project)
		}
	}
}

// Publish implements orchestrator.Sink: progress events are serialized
// once and broadcast to the event stream of the originating project.
func (h *Hub) Publish(event orchestrator.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal progress event", "error", err)
		return
	}
	h.Broadcast(event.Project, payload)
}

// SubscriberCount reports the current number of subscribers for a project.
func (h *Hub) SubscriberCount(project string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[project])
}

// HandleEvents streams a project's deployment progress as Server-Sent
// Events until the client disconnects.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	projectName := chi.URLParam(r, "projectName")

	if _, err := s.Registry.Get(projectName); err != nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown project"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.Hub.Subscribe(projectName)
	defer s.Hub.Unsubscribe(projectName, ch)

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
