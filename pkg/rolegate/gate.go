package rolegate

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
)

// Request is one role-escalation check.
type Request struct {
	AgentID       string              `json:"agent_id"`
	RequestedRole contracts.AgentRole `json:"requested_role"`
	Tier          contracts.TrustTier `json:"tier"`
	Score         int                 `json:"score"`
	OperationID   string              `json:"operation_id,omitempty"`
	Context       map[string]any      `json:"context,omitempty"`
}

// Evaluation is the immutable record of one gate check, carrying every
// sub-result so the decision can be replayed exactly.
type Evaluation struct {
	ID            string              `json:"id"`
	AgentID       string              `json:"agent_id"`
	RequestedRole contracts.AgentRole `json:"requested_role"`
	Tier          contracts.TrustTier `json:"tier"`
	Score         int                 `json:"score"`
	OperationID   string              `json:"operation_id,omitempty"`

	KernelAllowed   bool                   `json:"kernel_allowed"`
	PolicyDecision  contracts.GateDecision `json:"policy_decision,omitempty"`
	PoliciesApplied []AppliedPolicy        `json:"policies_applied,omitempty"`
	PolicyVersion   string                 `json:"policy_version"`
	OverrideUsed    bool                   `json:"override_used"`
	OverrideID      string                 `json:"override_id,omitempty"`
	OverrideBy      []string               `json:"override_by,omitempty"`

	Decision  contracts.GateDecision `json:"decision"`
	Reason    string                 `json:"reason"`
	Timestamp time.Time              `json:"timestamp"`
}

// Persister receives every evaluation for durable storage.
type Persister interface {
	AppendEvaluation(eval Evaluation) error
}

// Gate is the three-layer decision procedure.
type Gate struct {
	mu        sync.RWMutex
	bundle    *Bundle
	evaluator *PolicyEvaluator
	overrides *OverrideRegistry
	records   []Evaluation
	persist   Persister
	emitter   events.Emitter
	clock     func() time.Time
}

// NewGate creates a gate over a policy bundle and an override registry.
func NewGate(bundle *Bundle, overrides *OverrideRegistry) (*Gate, error) {
	if bundle == nil {
		bundle = &Bundle{Version: "1.0.0"}
	}
	if err := bundle.Validate(); err != nil {
		return nil, err
	}
	evaluator, err := NewPolicyEvaluator()
	if err != nil {
		return nil, err
	}
	return &Gate{
		bundle:    bundle,
		evaluator: evaluator,
		overrides: overrides,
		emitter:   events.Discard{},
		clock:     time.Now,
	}, nil
}

// WithClock overrides the clock for deterministic testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// WithPersister attaches durable storage for evaluations.
func (g *Gate) WithPersister(p Persister) *Gate {
	g.persist = p
	return g
}

// WithEmitter attaches the outbound event sink.
func (g *Gate) WithEmitter(e events.Emitter) *Gate {
	g.emitter = e
	return g
}

// Overrides exposes the basis override registry.
func (g *Gate) Overrides() *OverrideRegistry { return g.overrides }

// ReplaceBundle swaps in a new policy bundle after validation.
func (g *Gate) ReplaceBundle(bundle *Bundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	g.bundle = bundle
	g.mu.Unlock()
	return nil
}

// Evaluate runs the request through kernel, policy, and basis layers.
// The returned evaluation always reflects the full chain; a kernel
// denial is terminal and skips the later layers entirely.
func (g *Gate) Evaluate(req Request) (Evaluation, error) {
	g.mu.RLock()
	bundle := g.bundle
	g.mu.RUnlock()

	eval := Evaluation{
		ID:            uuid.New().String(),
		AgentID:       req.AgentID,
		RequestedRole: req.RequestedRole,
		Tier:          req.Tier,
		Score:         req.Score,
		OperationID:   req.OperationID,
		PolicyVersion: bundle.Version,
		Timestamp:     g.clock(),
	}

	// Kernel layer: the hard floor. No policy or override is consulted
	// once it denies.
	eval.KernelAllowed = KernelAllows(req.RequestedRole, req.Tier)
	if !eval.KernelAllowed {
		eval.Decision = contracts.DecisionDeny
		eval.Reason = fmt.Sprintf("kernel floor: role %s requires tier %s, agent at %s (score %d)",
			req.RequestedRole, MinimumTier(req.RequestedRole), req.Tier, req.Score)
		return g.record(eval)
	}

	// Policy layer.
	input := map[string]any{
		"agent":   req.AgentID,
		"role":    string(req.RequestedRole),
		"tier":    string(req.Tier),
		"score":   req.Score,
		"context": normalizeContext(req.Context),
	}
	policyDecision, applied, err := g.evaluator.EvaluateLayer(bundle, input)
	if err != nil {
		return Evaluation{}, err
	}
	eval.PolicyDecision = policyDecision
	eval.PoliciesApplied = applied

	if policyDecision == contracts.DecisionAllow {
		eval.Decision = contracts.DecisionAllow
		eval.Reason = "kernel and policy layers allowed"
		return g.record(eval)
	}

	// Basis layer: only reachable on a policy deny or escalate, and only
	// a complete, unrevoked, in-window override converts the outcome.
	if g.overrides != nil {
		if o, ok := g.overrides.FindActive(req.AgentID, req.RequestedRole); ok {
			eval.OverrideUsed = true
			eval.OverrideID = o.ID
			for _, a := range o.Approvals {
				eval.OverrideBy = append(eval.OverrideBy, a.ApproverID)
			}
			eval.Decision = contracts.DecisionAllow
			eval.Reason = fmt.Sprintf("policy %s overridden by basis override %s", policyDecision, o.ID)
			return g.record(eval)
		}
	}

	eval.Decision = policyDecision
	eval.Reason = fmt.Sprintf("policy layer: %s", policyDecision)
	return g.record(eval)
}

func (g *Gate) record(eval Evaluation) (Evaluation, error) {
	g.mu.Lock()
	g.records = append(g.records, eval)
	g.mu.Unlock()

	if g.persist != nil {
		if err := g.persist.AppendEvaluation(eval); err != nil {
			return Evaluation{}, err
		}
	}
	g.emitter.Emit(events.New(contracts.EventRoleGateDecision, eval.AgentID, eval))
	return eval, nil
}

// Evaluations returns a snapshot of all recorded evaluations.
func (g *Gate) Evaluations() []Evaluation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Evaluation, len(g.records))
	copy(out, g.records)
	return out
}

// DecisionBreakdown counts evaluations per final decision.
func (g *Gate) DecisionBreakdown() map[contracts.GateDecision]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[contracts.GateDecision]int)
	for _, e := range g.records {
		out[e.Decision]++
	}
	return out
}

// normalizeContext keeps CEL input well-typed when the caller passes nil.
func normalizeContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return map[string]any{}
	}
	return ctx
}
