package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Event is a progress notification emitted during a deployment run.
// Percent is monotonically non-decreasing within a run.
type Event struct {
	DeploymentID string `json:"deployment_id"`
	Project      string `json:"project"`
	Step         string `json:"step"`
	Percent      int    `json:"progress_percent"`
	Message      string `json:"message"`
}

// Sink receives progress events. Publish must never block the caller for
// long; slow consumers drop events rather than stall the pipeline.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event Event)

func (f SinkFunc) Publish(event Event) { f(event) }

const publisherBuffer = 64

// Publisher decouples the deployment pipeline from event consumers: the
// pipeline enqueues without blocking and a single goroutine delivers to
// the downstream sink. Events are dropped when the buffer is full.
type Publisher struct {
	events  chan Event
	done    chan struct{}
	dropped atomic.Int64
	log     *slog.Logger
	once    sync.Once
}

// NewPublisher starts the delivery goroutine for downstream.
func NewPublisher(downstream Sink, log *slog.Logger) *Publisher {
	p := &Publisher{
		events: make(chan Event, publisherBuffer),
		done:   make(chan struct{}),
		log:    log,
	}

	go func() {
		defer close(p.done)
		for event := range p.events {
			downstream.Publish(event)
		}
	}()

	return p
}

// Publish enqueues an event without blocking. Full buffer means the event
// is counted as dropped and discarded.
func (p *Publisher) Publish(event Event) {
	select {
	case p.events <- event:
	default:
		p.dropped.Add(1)
		p.log.Warn("progress event dropped",
			"deployment_id", event.DeploymentID,
			"step", event.Step)
	}
}

// Dropped returns how many events were discarded due to backpressure.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}

// Close drains buffered events into the downstream sink and stops the
// delivery goroutine. Publish must not be called after Close.
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.events)
		<-p.done
	})
}
