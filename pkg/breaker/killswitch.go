package breaker

import (
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// KillScope limits which agents a kill switch covers. A zero scope
// covers everyone.
type KillScope struct {
	Tier           contracts.TrustTier `json:"tier,omitempty"`
	Specialization string              `json:"specialization,omitempty"`
}

// Covers reports whether an agent with the given tier and specialization
// falls under the scope.
func (s KillScope) Covers(tier contracts.TrustTier, specialization string) bool {
	if s.Tier != "" && s.Tier != tier {
		return false
	}
	if s.Specialization != "" && s.Specialization != specialization {
		return false
	}
	return true
}

// KillSwitch is the single-slot process-wide halt. While active, every
// authorization check for a covered agent denies, regardless of
// per-agent breaker state.
type KillSwitch struct {
	ID            string    `json:"id"`
	Scope         KillScope `json:"scope"`
	Reason        string    `json:"reason"`
	ActivatedBy   string    `json:"activated_by"`
	ActivatedAt   time.Time `json:"activated_at"`
	DeactivatedBy string    `json:"deactivated_by,omitempty"`
}

// ActivateKillSwitch fills the kill-switch slot. Only one switch may be
// active at a time: activating while one is active is a Conflict, never
// an overwrite.
func (b *Breaker) ActivateKillSwitch(scope KillScope, reason, actor string) (*KillSwitch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.killSwitch != nil {
		return nil, fault.New(fault.Conflict, "kill switch %s already active", b.killSwitch.ID)
	}
	ks := &KillSwitch{
		ID:          uuid.New().String(),
		Scope:       scope,
		Reason:      reason,
		ActivatedBy: actor,
		ActivatedAt: b.clock(),
	}
	b.killSwitch = ks
	b.emitter.Emit(events.New(contracts.EventKillSwitch, "", *ks))

	cp := *ks
	return &cp, nil
}

// DeactivateKillSwitch empties the slot.
func (b *Breaker) DeactivateKillSwitch(actor string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.killSwitch == nil {
		return fault.New(fault.Conflict, "no kill switch active")
	}
	ks := *b.killSwitch
	ks.DeactivatedBy = actor
	b.killSwitch = nil
	b.emitter.Emit(events.New(contracts.EventKillSwitch, "", ks))
	return nil
}

// ActiveKillSwitch returns the active switch, if any.
func (b *Breaker) ActiveKillSwitch() (*KillSwitch, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.killSwitch == nil {
		return nil, false
	}
	cp := *b.killSwitch
	return &cp, true
}

// Authorize is the action-authorization check: it re-reads current state
// on every call (never cached) and denies when the kill switch covers
// the agent or the agent's breaker is paused.
func (b *Breaker) Authorize(agentID string, tier contracts.TrustTier, specialization string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.killSwitch != nil && b.killSwitch.Scope.Covers(tier, specialization) {
		return fault.New(fault.Forbidden, "kill switch %s active: %s", b.killSwitch.ID, b.killSwitch.Reason)
	}
	if state, ok := b.states[agentID]; ok && state.Paused {
		if state.ExpiresAt != nil && b.clock().After(*state.ExpiresAt) {
			// Past its expiry but not yet swept; treat as running.
			return nil
		}
		return fault.New(fault.Forbidden, "agent %s paused: %s", agentID, state.Reason)
	}
	return nil
}
