// Package trust implements the append-only trust ledger: every score
// change an agent ever had, with the ceiling that bounded it and the
// compliance classification of the request.
//
// The ledger never updates or deletes an entry. Current score and tier
// are derived by reading the latest entry, not stored as mutable state.
package trust

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/tiers"
)

// DefaultVelocityCap is the largest single-update delta that does not
// mark the entry as a gaming candidate.
const DefaultVelocityCap = 150

// Entry is one immutable trust ledger row.
type Entry struct {
	ID             string                     `json:"id"`
	AgentID        string                     `json:"agent_id"`
	EventType      string                     `json:"event_type"`
	PreviousScore  int                        `json:"previous_score"`
	ProposedScore  int                        `json:"proposed_score"`
	FinalScore     int                        `json:"final_score"`
	Ceiling        int                        `json:"ceiling"`
	CeilingSource  contracts.CeilingSource    `json:"ceiling_source"`
	CeilingApplied bool                       `json:"ceiling_applied"`
	Framework      contracts.Framework        `json:"framework,omitempty"`
	Compliance     contracts.ComplianceStatus `json:"compliance"`
	// VelocityExceeded marks entries whose delta passed the per-update
	// cap. The entry is still recorded in full (a punitive drop must
	// land), but the gaming detector treats it as a candidate signal.
	VelocityExceeded bool      `json:"velocity_exceeded"`
	Timestamp        time.Time `json:"timestamp"`
}

// Persister receives every appended entry for durable storage. Appends
// happen inside the per-agent critical section so the durable order
// matches the logical order.
type Persister interface {
	AppendTrustEntry(entry Entry) error
}

// Ledger is the in-memory trust ledger with per-agent serialization:
// proposals for the same agent never race, proposals for different
// agents proceed concurrently.
type Ledger struct {
	mu           sync.RWMutex
	agentLocks   map[string]*sync.Mutex
	entries      map[string][]Entry
	taskCounts   map[string]int
	boundaries   *tiers.BoundaryTable
	source       ContextSource
	velocityCap  int
	frameworkCap map[contracts.Framework]int
	persist      Persister
	emitter      events.Emitter
	clock        func() time.Time
}

// NewLedger creates a trust ledger over the given context source and
// tier table.
func NewLedger(source ContextSource, boundaries *tiers.BoundaryTable) *Ledger {
	if boundaries == nil {
		boundaries = tiers.Default()
	}
	return &Ledger{
		agentLocks:  make(map[string]*sync.Mutex),
		entries:     make(map[string][]Entry),
		taskCounts:  make(map[string]int),
		boundaries:  boundaries,
		source:      source,
		velocityCap: DefaultVelocityCap,
		emitter:     events.Discard{},
		clock:       time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// WithVelocityCap overrides the per-update delta cap.
func (l *Ledger) WithVelocityCap(cap int) *Ledger {
	l.velocityCap = cap
	return l
}

// VelocityCap returns the effective per-update delta cap.
func (l *Ledger) VelocityCap() int {
	return l.velocityCap
}

// WithFrameworkCeilings overlays deployment-specific caps on the fixed
// framework ceilings. Frameworks not named keep their defaults.
func (l *Ledger) WithFrameworkCeilings(caps map[contracts.Framework]int) *Ledger {
	merged := make(map[contracts.Framework]int, len(FrameworkCeilings)+len(caps))
	for fw, v := range FrameworkCeilings {
		merged[fw] = v
	}
	for fw, v := range caps {
		merged[fw] = v
	}
	l.frameworkCap = merged
	return l
}

// resolveCeiling applies any deployment framework-ceiling overlay.
func (l *Ledger) resolveCeiling(agentID string, framework contracts.Framework) Ceiling {
	caps := FrameworkCeilings
	if l.frameworkCap != nil {
		caps = l.frameworkCap
	}
	return resolveCeiling(l.source, agentID, framework, caps)
}

// WithPersister attaches durable storage for appended entries.
func (l *Ledger) WithPersister(p Persister) *Ledger {
	l.persist = p
	return l
}

// WithEmitter attaches the outbound event sink.
func (l *Ledger) WithEmitter(e events.Emitter) *Ledger {
	l.emitter = e
	return l
}

func (l *Ledger) lockAgent(agentID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.agentLocks[agentID]
	if !ok {
		m = &sync.Mutex{}
		l.agentLocks[agentID] = m
	}
	return m
}

// ProposeScore resolves the agent's effective ceiling, clips the
// proposal to it, classifies compliance, and appends the entry. The
// ledger always appends: an over-cap delta is recorded and marked, not
// rejected.
func (l *Ledger) ProposeScore(agentID string, newScore int, eventType string, framework contracts.Framework) (Entry, error) {
	if newScore < 0 {
		newScore = 0
	}

	agentMu := l.lockAgent(agentID)
	agentMu.Lock()
	defer agentMu.Unlock()

	ceiling := l.resolveCeiling(agentID, framework)

	l.mu.RLock()
	prev := 0
	if history := l.entries[agentID]; len(history) > 0 {
		prev = history[len(history)-1].FinalScore
	}
	l.mu.RUnlock()

	final := newScore
	clipped := false
	if final > ceiling.Value {
		final = ceiling.Value
		clipped = true
	}

	delta := final - prev
	if delta < 0 {
		delta = -delta
	}

	entry := Entry{
		ID:               uuid.New().String(),
		AgentID:          agentID,
		EventType:        eventType,
		PreviousScore:    prev,
		ProposedScore:    newScore,
		FinalScore:       final,
		Ceiling:          ceiling.Value,
		CeilingSource:    ceiling.Source,
		CeilingApplied:   clipped,
		Framework:        ceiling.Framework,
		Compliance:       Classify(newScore, final, ceiling.Value),
		VelocityExceeded: delta > l.velocityCap,
		Timestamp:        l.clock(),
	}

	// Durable append comes first: on a persister failure nothing is
	// recorded in memory either, so the caller can retry without
	// forking the two ledgers.
	if l.persist != nil {
		if err := l.persist.AppendTrustEntry(entry); err != nil {
			return Entry{}, err
		}
	}

	l.mu.Lock()
	l.entries[agentID] = append(l.entries[agentID], entry)
	l.mu.Unlock()

	l.emitter.Emit(events.New(contracts.EventTrustScoreChanged, agentID, entry))
	return entry, nil
}

// CurrentScore derives the agent's score and tier from the latest ledger
// entry.
func (l *Ledger) CurrentScore(agentID string) (int, contracts.TrustTier, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := l.entries[agentID]
	if len(history) == 0 {
		return 0, "", fault.New(fault.NotFound, "agent %s has no trust history", agentID)
	}
	score := history[len(history)-1].FinalScore
	tier, err := l.boundaries.TierFor(score)
	if err != nil {
		return 0, "", err
	}
	return score, tier, nil
}

// History returns the agent's entries at or after since, oldest first.
func (l *Ledger) History(agentID string, since time.Time) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries[agentID] {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// RecordTask increments the agent's completed-task counter used by
// progression checks.
func (l *Ledger) RecordTask(agentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.taskCounts[agentID]++
}

// TaskCount returns the agent's completed-task total.
func (l *Ledger) TaskCount(agentID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.taskCounts[agentID]
}

// Boundaries exposes the tier table the ledger derives tiers from.
func (l *Ledger) Boundaries() *tiers.BoundaryTable { return l.boundaries }

// ComplianceBreakdown counts entries per compliance status across all
// agents.
func (l *Ledger) ComplianceBreakdown() map[contracts.ComplianceStatus]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[contracts.ComplianceStatus]int)
	for _, history := range l.entries {
		for _, e := range history {
			out[e.Compliance]++
		}
	}
	return out
}
