// Package breaker implements the per-agent pause/resume state machine,
// cascading halts across the declared dependency graph, and the global
// kill switch.
//
// State per agent is Running or Paused; the latest state is mutable but
// every transition also lands in an append-only event log.
package breaker

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// State is an agent's current breaker state.
type State struct {
	AgentID string                `json:"agent_id"`
	Paused  bool                  `json:"paused"`
	Reason  contracts.PauseReason `json:"reason,omitempty"`
	// PausedAt keeps the earliest pause timestamp across idempotent
	// re-pauses.
	PausedAt time.Time `json:"paused_at,omitempty"`
	PausedBy string    `json:"paused_by,omitempty"`
	// ParentAgentID is the cascade origin when Reason is cascade_halt.
	ParentAgentID string     `json:"parent_agent_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// EventKind labels an entry in the breaker event log.
type EventKind string

const (
	EventPaused      EventKind = "paused"
	EventResumed     EventKind = "resumed"
	EventAutoResumed EventKind = "auto_resumed"
	EventCascaded    EventKind = "cascaded"
	EventCascadeFail EventKind = "cascade_failed"
)

// LogEntry is one append-only breaker event.
type LogEntry struct {
	ID        string                `json:"id"`
	Kind      EventKind             `json:"kind"`
	AgentID   string                `json:"agent_id"`
	Reason    contracts.PauseReason `json:"reason,omitempty"`
	Actor     string                `json:"actor"`
	Origin    string                `json:"origin,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// Persister receives every breaker log entry for durable storage.
type Persister interface {
	AppendBreakerEvent(entry LogEntry) error
}

// Breaker holds per-agent state, the dependency graph, and the kill
// switch slot. One mutex serializes all transitions; cascade halts
// therefore compute under a single critical section, which is what makes
// the visited-set cycle guarantee hold under concurrent graph edits.
type Breaker struct {
	mu         sync.RWMutex
	states     map[string]*State
	dependents map[string][]string // dependsOn -> agents that declared a dependency on it
	killSwitch *KillSwitch
	log        []LogEntry
	persist    Persister
	emitter    events.Emitter
	clock      func() time.Time
}

// New creates a breaker with no pauses and an inactive kill switch.
func New() *Breaker {
	return &Breaker{
		states:     make(map[string]*State),
		dependents: make(map[string][]string),
		emitter:    events.Discard{},
		clock:      time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

// WithPersister attaches durable storage for the event log.
func (b *Breaker) WithPersister(p Persister) *Breaker {
	b.persist = p
	return b
}

// WithEmitter attaches the outbound event sink.
func (b *Breaker) WithEmitter(e events.Emitter) *Breaker {
	b.emitter = e
	return b
}

// DeclareDependency records that dependent halts whenever dependsOn is
// halted by the circuit breaker.
func (b *Breaker) DeclareDependency(dependent, dependsOn string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.dependents[dependsOn] {
		if d == dependent {
			return
		}
	}
	b.dependents[dependsOn] = append(b.dependents[dependsOn], dependent)
}

// Pause moves an agent to Paused. Pausing an already paused agent is
// idempotent: reason and actor update, the original timestamp stays.
// Reason circuit_breaker additionally cascades to every declared
// dependent, transitively, pausing each exactly once even when the
// dependency graph contains cycles.
func (b *Breaker) Pause(agentID string, reason contracts.PauseReason, actor string, expiry *time.Time) (*State, error) {
	if !reason.Valid() {
		return nil, fault.New(fault.Forbidden, "unknown pause reason %q", reason)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.pauseLocked(agentID, reason, actor, "", expiry)

	if reason == contracts.PauseCircuitBreaker {
		b.cascadeLocked(agentID, actor)
	}

	cp := *state
	return &cp, nil
}

func (b *Breaker) pauseLocked(agentID string, reason contracts.PauseReason, actor, origin string, expiry *time.Time) *State {
	now := b.clock()
	state, ok := b.states[agentID]
	if !ok {
		state = &State{AgentID: agentID}
		b.states[agentID] = state
	}

	if state.Paused {
		// Idempotent re-pause: keep the earliest timestamp.
		state.Reason = reason
		state.PausedBy = actor
		state.ParentAgentID = origin
		state.ExpiresAt = expiry
	} else {
		state.Paused = true
		state.Reason = reason
		state.PausedAt = now
		state.PausedBy = actor
		state.ParentAgentID = origin
		state.ExpiresAt = expiry
	}

	b.appendLog(LogEntry{
		Kind: EventPaused, AgentID: agentID, Reason: reason,
		Actor: actor, Origin: origin, Timestamp: now,
	})
	b.emitter.Emit(events.New(contracts.EventAgentPaused, agentID, *state))
	return state
}

// cascadeLocked walks the dependents graph breadth-first from origin,
// pausing each visited agent once. The visited set breaks cycles.
func (b *Breaker) cascadeLocked(origin, actor string) {
	visited := map[string]bool{origin: true}
	queue := append([]string(nil), b.dependents[origin]...)

	for len(queue) > 0 {
		agentID := queue[0]
		queue = queue[1:]
		if visited[agentID] {
			continue
		}
		visited[agentID] = true

		b.pauseLocked(agentID, contracts.PauseCascadeHalt, actor, origin, nil)
		b.appendLog(LogEntry{
			Kind: EventCascaded, AgentID: agentID,
			Reason: contracts.PauseCascadeHalt, Actor: actor, Origin: origin,
			Timestamp: b.clock(),
		})

		queue = append(queue, b.dependents[agentID]...)
	}
}

// Resume moves an agent back to Running. Resuming a running agent fails
// with Conflict. Resuming a cascade origin never auto-resumes its
// dependents.
func (b *Breaker) Resume(agentID, actor string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resumeLocked(agentID, actor, EventResumed)
}

func (b *Breaker) resumeLocked(agentID, actor string, kind EventKind) error {
	state, ok := b.states[agentID]
	if !ok || !state.Paused {
		return fault.New(fault.Conflict, "agent %s is not paused", agentID)
	}

	state.Paused = false
	state.Reason = ""
	state.PausedAt = time.Time{}
	state.PausedBy = ""
	state.ParentAgentID = ""
	state.ExpiresAt = nil

	b.appendLog(LogEntry{Kind: kind, AgentID: agentID, Actor: actor, Timestamp: b.clock()})
	b.emitter.Emit(events.New(contracts.EventAgentResumed, agentID, *state))
	return nil
}

// SweepExpired resumes every paused agent whose pause expiry has passed,
// with a distinct auto_resume event for audit. Returns the agents
// resumed.
func (b *Breaker) SweepExpired() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	var resumed []string
	for agentID, state := range b.states {
		if state.Paused && state.ExpiresAt != nil && now.After(*state.ExpiresAt) {
			if err := b.resumeLocked(agentID, "system", EventAutoResumed); err == nil {
				resumed = append(resumed, agentID)
			}
		}
	}
	return resumed
}

// Get returns an agent's state. Agents never paused report Running.
func (b *Breaker) Get(agentID string) State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if state, ok := b.states[agentID]; ok {
		return *state
	}
	return State{AgentID: agentID}
}

// Paused lists agents currently paused.
func (b *Breaker) Paused() []State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []State
	for _, state := range b.states {
		if state.Paused {
			out = append(out, *state)
		}
	}
	return out
}

// Log returns a snapshot of the append-only event log.
func (b *Breaker) Log() []LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]LogEntry, len(b.log))
	copy(out, b.log)
	return out
}

func (b *Breaker) appendLog(entry LogEntry) {
	entry.ID = uuid.New().String()
	b.log = append(b.log, entry)
	if b.persist != nil {
		if err := b.persist.AppendBreakerEvent(entry); err != nil {
			// A failed durable append must not roll back the pause; the
			// failure itself becomes an event so no agent is left in an
			// ambiguous state.
			b.emitter.Emit(events.New(contracts.EventCascadeStepFailed, entry.AgentID, LogEntry{
				Kind: EventCascadeFail, AgentID: entry.AgentID,
				Detail: err.Error(), Timestamp: b.clock(),
			}))
		}
	}
}
