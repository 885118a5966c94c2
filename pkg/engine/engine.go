// Package engine wires the governance components into one facade: the
// hierarchical context store, provenance and trust ledgers, the
// three-layer role gate, the gaming detector, the circuit breaker, and
// the consensus engine. Callers outside this module talk to the Engine;
// the components never reach into each other directly.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/vorion-labs/cognigate/pkg/audit"
	"github.com/vorion-labs/cognigate/pkg/breaker"
	"github.com/vorion-labs/cognigate/pkg/consensus"
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/directory"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/gaming"
	"github.com/vorion-labs/cognigate/pkg/hierarchy"
	"github.com/vorion-labs/cognigate/pkg/provenance"
	"github.com/vorion-labs/cognigate/pkg/rolegate"
	"github.com/vorion-labs/cognigate/pkg/tiers"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

// Options configures engine construction. Zero values get production
// defaults.
type Options struct {
	TierTable    *tiers.BoundaryTable
	PolicyBundle *rolegate.Bundle
	BasisSecret  []byte
	Thresholds   gaming.Thresholds
	VelocityCap  int
	Agents       directory.AgentDirectory
	Orgs         directory.OrgDirectory
	Emitter      events.Emitter
	Audit        audit.Logger
	Logger       *slog.Logger
	TrustStore   trust.Persister
	GateStore    rolegate.Persister
	BreakerStore breaker.Persister
	Clock        func() time.Time

	// Deployment profile tuning. Zero values keep component defaults.
	FrameworkCeilings  map[contracts.Framework]int
	OrgGracePeriod     time.Duration
	OperationTTL       time.Duration
	OverrideValidity   time.Duration
	ConsensusAgreement float64
	ConsensusWindow    time.Duration
}

// Engine is the composed governance facade.
type Engine struct {
	hierarchy  *hierarchy.Store
	provenance *provenance.Ledger
	trust      *trust.Ledger
	gate       *rolegate.Gate
	detector   *gaming.Detector
	breaker    *breaker.Breaker
	consensus  *consensus.Engine
	agents     directory.AgentDirectory
	orgs       directory.OrgDirectory
	audit      audit.Logger
	logger     *slog.Logger
	clock      func() time.Time

	consensusAgreement float64
	consensusWindow    time.Duration

	// bindings maps an agent to its frozen agent-scope context node.
	mu       sync.RWMutex
	bindings map[string]string
}

// New assembles an engine from options.
func New(opts Options) (*Engine, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Emitter == nil {
		opts.Emitter = events.Discard{}
	}
	if opts.Audit == nil {
		opts.Audit = audit.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TierTable == nil {
		opts.TierTable = tiers.Default()
	}
	if len(opts.BasisSecret) == 0 {
		return nil, fault.New(fault.Forbidden, "basis override secret is required")
	}

	if opts.ConsensusAgreement <= 0 || opts.ConsensusAgreement > 1 {
		opts.ConsensusAgreement = 0.6
	}
	if opts.ConsensusWindow <= 0 {
		opts.ConsensusWindow = time.Hour
	}

	e := &Engine{
		agents:   opts.Agents,
		orgs:     opts.Orgs,
		audit:    opts.Audit,
		logger:   opts.Logger.With("component", "engine"),
		clock:    opts.Clock,
		bindings: make(map[string]string),

		consensusAgreement: opts.ConsensusAgreement,
		consensusWindow:    opts.ConsensusWindow,
	}

	e.hierarchy = hierarchy.NewStore().WithClock(opts.Clock)
	if opts.OrgGracePeriod > 0 {
		e.hierarchy = e.hierarchy.WithGracePeriod(opts.OrgGracePeriod)
	}
	if opts.OperationTTL > 0 {
		e.hierarchy = e.hierarchy.WithOperationTTL(opts.OperationTTL)
	}
	e.provenance = provenance.NewLedger().WithClock(opts.Clock)

	e.trust = trust.NewLedger(&contextSource{engine: e}, opts.TierTable).
		WithClock(opts.Clock).
		WithEmitter(opts.Emitter)
	if opts.VelocityCap > 0 {
		e.trust = e.trust.WithVelocityCap(opts.VelocityCap)
	}
	if len(opts.FrameworkCeilings) > 0 {
		e.trust = e.trust.WithFrameworkCeilings(opts.FrameworkCeilings)
	}
	if opts.TrustStore != nil {
		e.trust = e.trust.WithPersister(opts.TrustStore)
	}

	overrides := rolegate.NewOverrideRegistry(opts.BasisSecret).WithClock(opts.Clock)
	if opts.OverrideValidity > 0 {
		overrides = overrides.WithValidity(opts.OverrideValidity)
	}
	gate, err := rolegate.NewGate(opts.PolicyBundle, overrides)
	if err != nil {
		return nil, err
	}
	e.gate = gate.WithClock(opts.Clock).WithEmitter(opts.Emitter)
	if opts.GateStore != nil {
		e.gate = e.gate.WithPersister(opts.GateStore)
	}

	e.detector = gaming.NewDetector(e.trust, opts.Thresholds).
		WithClock(opts.Clock).
		WithEmitter(opts.Emitter)

	e.breaker = breaker.New().WithClock(opts.Clock).WithEmitter(opts.Emitter)
	if opts.BreakerStore != nil {
		e.breaker = e.breaker.WithPersister(opts.BreakerStore)
	}

	e.consensus = consensus.NewEngine().WithClock(opts.Clock).WithEmitter(opts.Emitter)

	return e, nil
}

// Component accessors for callers that need the narrower surfaces.

func (e *Engine) Hierarchy() *hierarchy.Store    { return e.hierarchy }
func (e *Engine) Provenance() *provenance.Ledger { return e.provenance }
func (e *Engine) Trust() *trust.Ledger           { return e.trust }
func (e *Engine) Gate() *rolegate.Gate           { return e.gate }
func (e *Engine) Detector() *gaming.Detector     { return e.detector }
func (e *Engine) Breaker() *breaker.Breaker      { return e.breaker }
func (e *Engine) Consensus() *consensus.Engine   { return e.consensus }

// BindAgentContext associates an agent with its frozen agent-scope
// context node. Trust ceiling resolution reads limits through this
// binding. Re-binding to a different node is a Conflict; the binding is
// as immutable as the context itself.
func (e *Engine) BindAgentContext(agentID, contextID string) error {
	node, err := e.hierarchy.Get(contextID)
	if err != nil {
		return err
	}
	if node.Scope != hierarchy.ScopeAgent {
		return fault.New(fault.Forbidden, "context %s is scope %s, want agent", contextID, node.Scope)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.bindings[agentID]; ok {
		if existing == contextID {
			return nil
		}
		return fault.New(fault.Conflict, "agent %s already bound to context %s", agentID, existing)
	}
	e.bindings[agentID] = contextID
	return nil
}

// boundContext returns the agent's context node and its organization
// parent, when bound.
func (e *Engine) boundContext(agentID string) (*hierarchy.Node, *hierarchy.Node, bool) {
	e.mu.RLock()
	contextID, ok := e.bindings[agentID]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	node, err := e.hierarchy.Get(contextID)
	if err != nil {
		return nil, nil, false
	}
	org, err := e.hierarchy.Get(node.ParentID)
	if err != nil {
		return node, nil, true
	}
	return node, org, true
}

// contextSource adapts the context bindings and the org directory to
// the trust ledger's ceiling lookup.
type contextSource struct {
	engine *Engine
}

func (c *contextSource) AgentCeiling(agentID string) (int, bool) {
	node, _, ok := c.engine.boundContext(agentID)
	if !ok {
		return 0, false
	}
	return ceilingParam(node.Params)
}

func (c *contextSource) OrgCeiling(agentID string) (int, bool) {
	_, org, ok := c.engine.boundContext(agentID)
	if !ok || org == nil {
		return 0, false
	}
	return ceilingParam(org.Params)
}

func (c *contextSource) OrgFrameworks(agentID string) []contracts.Framework {
	_, org, ok := c.engine.boundContext(agentID)
	if !ok || org == nil {
		return nil
	}
	var out []contracts.Framework
	if raw, ok := org.Params["compliance_frameworks"]; ok {
		if list, ok := raw.([]any); ok {
			for _, v := range list {
				if s, ok := v.(string); ok {
					out = append(out, contracts.Framework(s))
				}
			}
		}
		if list, ok := raw.([]string); ok {
			for _, s := range list {
				out = append(out, contracts.Framework(s))
			}
		}
	}
	if c.engine.orgs != nil {
		if fws, err := c.engine.orgs.GetOrgComplianceFrameworks(org.Key); err == nil {
			out = append(out, fws...)
		}
	}
	return out
}

// ceilingParam reads the "trust_ceiling" param, tolerating the numeric
// types JSON decoding produces.
func ceilingParam(params hierarchy.Params) (int, bool) {
	raw, ok := params["trust_ceiling"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}
