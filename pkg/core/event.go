package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a unit of work recognized in the model stream.
type EventType string

const (
	EventReasoning       EventType = "reasoning.fragment"
	EventActionStarted   EventType = "action.started"
	EventActionCompleted EventType = "action.completed"
	EventAnswer          EventType = "answer.fragment"
	EventFeedUpdated     EventType = "feed.updated"
	EventError           EventType = "error"
)

// Event is the observable surface of the runtime. Each event carries
// enough metadata for a consumer to reconstruct session state without
// re-parsing the stream.
type Event struct {
	ID        string
	Type      EventType
	SessionID string
	ActionID  string
	OutputKey string
	Content   string
	Final     bool
	Err       string
	Timestamp time.Time
	Payload   map[string]any
}

// Emitter receives events in arrival order.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// NewEvent builds an event with a generated ID and timestamp.
func NewEvent(eventType EventType, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// NoopEmitter is a default no-op implementation.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(_ context.Context, _ Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, event Event)

// Emit implements Emitter.
func (f EmitterFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// ChannelEmitter delivers events to a buffered channel, dropping nothing:
// Emit blocks when the consumer falls behind, preserving arrival order.
type ChannelEmitter struct {
	mu     sync.RWMutex
	ch     chan Event
	closed bool
}

// NewChannelEmitter creates a channel emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

// Emit implements Emitter.
func (e *ChannelEmitter) Emit(ctx context.Context, event Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

// Events returns the receive side of the event stream.
func (e *ChannelEmitter) Events() <-chan Event { return e.ch }

// Close stops delivery and closes the event channel. It waits for any
// in-flight Emit to finish.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}

// MultiEmitter fans out each event to all child emitters in order.
type MultiEmitter []Emitter

// Emit implements Emitter.
func (m MultiEmitter) Emit(ctx context.Context, event Event) {
	for _, child := range m {
		child.Emit(ctx, event)
	}
}
