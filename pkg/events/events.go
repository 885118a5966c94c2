// Package events carries governance events out of the engine toward the
// audit sink and the notification dispatcher (both out of scope). The
// engine only sees the Emitter interface; sinks include an in-memory
// buffer for tests and a Redis Streams publisher for deployments where
// the dispatcher runs out of process.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// Emitter publishes a governance event. Implementations must not block
// the caller's critical section; slow sinks buffer internally.
type Emitter interface {
	Emit(event contracts.Event)
}

// New builds an event envelope.
func New(eventType contracts.EventType, agentID string, record any) contracts.Event {
	return contracts.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		AgentID:   agentID,
		Timestamp: time.Now().UTC(),
		Record:    record,
	}
}

// Discard ignores every event.
type Discard struct{}

func (Discard) Emit(contracts.Event) {}

// Buffer is a mutex-guarded in-memory sink used by tests and the CLI.
type Buffer struct {
	mu     sync.Mutex
	events []contracts.Event
}

// NewBuffer creates an empty buffer sink.
func NewBuffer() *Buffer { return &Buffer{} }

// Emit implements Emitter.
func (b *Buffer) Emit(event contracts.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

// Events returns a snapshot of everything emitted so far.
func (b *Buffer) Events() []contracts.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]contracts.Event, len(b.events))
	copy(out, b.events)
	return out
}

// ByType filters the snapshot by event type.
func (b *Buffer) ByType(t contracts.EventType) []contracts.Event {
	var out []contracts.Event
	for _, e := range b.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Fanout emits to several sinks in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(event contracts.Event) {
	for _, e := range f {
		e.Emit(event)
	}
}
