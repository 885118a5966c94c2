package engine

import (
	"github.com/vorion-labs/cognigate/pkg/audit"
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/gaming"
	"github.com/vorion-labs/cognigate/pkg/provenance"
	"github.com/vorion-labs/cognigate/pkg/rolegate"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

// OnboardRequest describes a new agent entering governance.
type OnboardRequest struct {
	AgentID          string                 `json:"agent_id"`
	ContextID        string                 `json:"context_id"`
	CreationType     contracts.CreationType `json:"creation_type"`
	ParentAgentID    string                 `json:"parent_agent_id,omitempty"`
	Creator          string                 `json:"creator"`
	OriginContextIDs []string               `json:"origin_context_ids,omitempty"`
}

// OnboardResult carries the provenance record and the seeded trust entry.
type OnboardResult struct {
	Record       *provenance.Record `json:"record"`
	InitialEntry trust.Entry        `json:"initial_entry"`
}

// OnboardAgent records provenance, binds the agent to its frozen
// context, and seeds the trust ledger: inherited trust from the parent
// lineage (decayed per generation) plus the creation-type modifier,
// clipped to the effective ceiling like any other proposal.
func (e *Engine) OnboardAgent(req OnboardRequest) (*OnboardResult, error) {
	if req.ContextID != "" {
		if err := e.BindAgentContext(req.AgentID, req.ContextID); err != nil {
			return nil, err
		}
	}

	record, err := e.provenance.RecordProvenance(req.AgentID, req.CreationType, req.ParentAgentID, req.Creator, req.OriginContextIDs)
	if err != nil {
		return nil, err
	}

	base := 0
	if req.ParentAgentID != "" {
		parentScore, _, err := e.trust.CurrentScore(req.ParentAgentID)
		if err != nil && fault.KindOf(err) != fault.NotFound {
			return nil, err
		}
		base = provenance.InheritedTrust(parentScore, record.Generation, req.CreationType)
	}
	seed := e.provenance.ApplyModifier(base, req.CreationType)

	entry, err := e.trust.ProposeScore(req.AgentID, seed, "provenance_seed", "")
	if err != nil {
		return nil, err
	}

	_ = e.audit.Record(req.Creator, audit.EventMutation, "agent.onboard", req.AgentID, map[string]any{
		"creation_type": req.CreationType,
		"generation":    record.Generation,
		"initial_score": entry.FinalScore,
	})
	e.logger.Info("agent onboarded",
		"agent", req.AgentID,
		"creation_type", req.CreationType,
		"initial_score", entry.FinalScore,
	)

	return &OnboardResult{Record: record, InitialEntry: entry}, nil
}

// ProposeScore runs a trust change through the ledger, then scans the
// agent's recent trajectory for gaming patterns. The returned alerts are
// whatever the scan newly raised.
func (e *Engine) ProposeScore(agentID string, newScore int, eventType string, framework contracts.Framework) (trust.Entry, []gaming.Alert, error) {
	entry, err := e.trust.ProposeScore(agentID, newScore, eventType, framework)
	if err != nil {
		return trust.Entry{}, nil, err
	}

	alerts := e.detector.Scan(agentID)
	for _, a := range alerts {
		e.logger.Warn("gaming alert raised",
			"agent", a.AgentID,
			"type", a.Type,
			"severity", a.Severity,
			"detail", a.Detail,
		)
	}
	return entry, alerts, nil
}

// CompleteTask counts a finished task toward tier progression.
func (e *Engine) CompleteTask(agentID string) {
	e.trust.RecordTask(agentID)
}

// Progression reports the agent's tier progression eligibility.
func (e *Engine) Progression(agentID string) (trust.ProgressionResult, error) {
	return e.trust.CanProgress(agentID)
}

// Authorize is the pre-action check: kill switch and pause state first,
// then the three-layer role gate. It re-reads breaker state on every
// call; an evaluation is recorded only when the breaker admits the
// request.
func (e *Engine) Authorize(agentID string, role contracts.AgentRole, operationID string, evalContext map[string]any) (rolegate.Evaluation, error) {
	score, tier, err := e.trust.CurrentScore(agentID)
	if err != nil {
		if fault.KindOf(err) != fault.NotFound {
			return rolegate.Evaluation{}, err
		}
		score = 0
		tier, err = e.trust.Boundaries().TierFor(0)
		if err != nil {
			return rolegate.Evaluation{}, err
		}
	}

	specialization := ""
	if e.agents != nil {
		if set, err := e.agents.GetAgentCapabilities(agentID); err == nil {
			specialization = set.Specialization
		}
	}

	if err := e.breaker.Authorize(agentID, tier, specialization); err != nil {
		return rolegate.Evaluation{}, err
	}

	eval, err := e.gate.Evaluate(rolegate.Request{
		AgentID:       agentID,
		RequestedRole: role,
		Tier:          tier,
		Score:         score,
		OperationID:   operationID,
		Context:       evalContext,
	})
	if err != nil {
		return rolegate.Evaluation{}, err
	}

	_ = e.audit.Record(agentID, audit.EventAccess, "gate.evaluate", string(role), map[string]any{
		"decision": eval.Decision,
		"tier":     tier,
		"score":    score,
	})
	return eval, nil
}
