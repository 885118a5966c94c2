package trust

import (
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/tiers"
)

// FrameworkCeilings are the fixed regulatory score caps per compliance
// framework. These are constants of the frameworks themselves, unlike
// organizational and agent ceilings which are deployment configuration.
var FrameworkCeilings = map[contracts.Framework]int{
	contracts.FrameworkEUAIAct:    699,
	contracts.FrameworkFinancial:  899,
	contracts.FrameworkHealthcare: 649,
	contracts.FrameworkGeneral:    tiers.MaxScore,
}

// ContextSource supplies the organizational and agent-level limits the
// ceiling resolution draws from. The engine backs it with the
// hierarchical context store and the organization directory; tests use a
// fixture.
type ContextSource interface {
	// AgentCeiling returns the agent context's declared ceiling, if any.
	AgentCeiling(agentID string) (int, bool)
	// OrgCeiling returns the ceiling of the agent's organization, if any.
	OrgCeiling(agentID string) (int, bool)
	// OrgFrameworks returns the compliance frameworks of the agent's
	// organization.
	OrgFrameworks(agentID string) []contracts.Framework
}

// Ceiling is a resolved effective limit and where it came from.
type Ceiling struct {
	Value     int                     `json:"value"`
	Source    contracts.CeilingSource `json:"source"`
	Framework contracts.Framework     `json:"framework,omitempty"`
}

// ResolveCeiling computes the effective ceiling for an agent as the
// minimum of all applicable regulatory framework caps, the
// organizational ceiling, and the agent context ceiling. An explicit
// framework on the proposal joins the organization's frameworks. With
// nothing configured the ceiling is the top of the scale.
func ResolveCeiling(src ContextSource, agentID string, framework contracts.Framework) Ceiling {
	return resolveCeiling(src, agentID, framework, FrameworkCeilings)
}

func resolveCeiling(src ContextSource, agentID string, framework contracts.Framework, caps map[contracts.Framework]int) Ceiling {
	eff := Ceiling{Value: tiers.MaxScore, Source: contracts.CeilingNone}

	frameworks := src.OrgFrameworks(agentID)
	if framework != "" {
		frameworks = append(frameworks, framework)
	}
	for _, fw := range frameworks {
		cap, ok := caps[fw]
		if !ok {
			continue
		}
		if cap < eff.Value {
			eff = Ceiling{Value: cap, Source: contracts.CeilingRegulatory, Framework: fw}
		}
	}

	if orgCap, ok := src.OrgCeiling(agentID); ok && orgCap < eff.Value {
		eff = Ceiling{Value: orgCap, Source: contracts.CeilingOrganizational}
	}
	if agentCap, ok := src.AgentCeiling(agentID); ok && agentCap < eff.Value {
		eff = Ceiling{Value: agentCap, Source: contracts.CeilingAgent}
	}
	return eff
}

// CheckResult is a dry-run ceiling resolution: where a proposed score
// would land before and after the effective ceiling applies. Nothing is
// recorded.
type CheckResult struct {
	Proposed      int                 `json:"proposed"`
	Effective     int                 `json:"effective"`
	Ceiling       Ceiling             `json:"ceiling"`
	OriginalTier  contracts.TrustTier `json:"original_tier"`
	EffectiveTier contracts.TrustTier `json:"effective_tier"`
	Clipped       bool                `json:"clipped"`
}

// CheckCeiling reports what ProposeScore would do with the given score,
// without appending an entry.
func (l *Ledger) CheckCeiling(agentID string, proposed int, framework contracts.Framework) (CheckResult, error) {
	if proposed < 0 {
		proposed = 0
	}

	ceiling := l.resolveCeiling(agentID, framework)
	effective := proposed
	if effective > ceiling.Value {
		effective = ceiling.Value
	}

	rawTier := proposed
	if rawTier > tiers.MaxScore {
		rawTier = tiers.MaxScore
	}
	originalTier, err := l.boundaries.TierFor(rawTier)
	if err != nil {
		return CheckResult{}, err
	}
	effectiveTier, err := l.boundaries.TierFor(effective)
	if err != nil {
		return CheckResult{}, err
	}

	return CheckResult{
		Proposed:      proposed,
		Effective:     effective,
		Ceiling:       ceiling,
		OriginalTier:  originalTier,
		EffectiveTier: effectiveTier,
		Clipped:       effective != proposed,
	}, nil
}

// Classify maps a (proposed, final, ceiling) triple to a compliance
// status. VIOLATION can only appear if a score above the ceiling was
// recorded unclipped, which the append path never does; seeing one in
// the ledger means something bypassed the engine.
func Classify(proposed, final, ceiling int) contracts.ComplianceStatus {
	switch {
	case final > ceiling:
		return contracts.ComplianceViolation
	case proposed > ceiling:
		return contracts.ComplianceWarning
	default:
		return contracts.ComplianceCompliant
	}
}
