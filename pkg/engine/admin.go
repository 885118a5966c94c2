package engine

import (
	"time"

	"github.com/vorion-labs/cognigate/pkg/audit"
	"github.com/vorion-labs/cognigate/pkg/breaker"
	"github.com/vorion-labs/cognigate/pkg/consensus"
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/gaming"
)

// PauseAgent halts an agent, cascading to dependents when the reason is
// circuit_breaker.
func (e *Engine) PauseAgent(agentID string, reason contracts.PauseReason, actor string, expiry *time.Time) (*breaker.State, error) {
	state, err := e.breaker.Pause(agentID, reason, actor, expiry)
	if err != nil {
		return nil, err
	}
	_ = e.audit.Record(actor, audit.EventMutation, "agent.pause", agentID, map[string]any{
		"reason": reason,
	})
	e.logger.Info("agent paused", "agent", agentID, "reason", reason, "actor", actor)
	return state, nil
}

// ResumeAgent returns an agent to running.
func (e *Engine) ResumeAgent(agentID, actor string) error {
	if err := e.breaker.Resume(agentID, actor); err != nil {
		return err
	}
	_ = e.audit.Record(actor, audit.EventMutation, "agent.resume", agentID, nil)
	e.logger.Info("agent resumed", "agent", agentID, "actor", actor)
	return nil
}

// ActivateKillSwitch engages the process-wide halt for the given scope.
func (e *Engine) ActivateKillSwitch(scope breaker.KillScope, reason, actor string) (*breaker.KillSwitch, error) {
	ks, err := e.breaker.ActivateKillSwitch(scope, reason, actor)
	if err != nil {
		return nil, err
	}
	_ = e.audit.Record(actor, audit.EventSystem, "killswitch.activate", ks.ID, map[string]any{
		"reason": reason,
		"scope":  scope,
	})
	e.logger.Warn("kill switch activated", "id", ks.ID, "reason", reason, "actor", actor)
	return ks, nil
}

// DeactivateKillSwitch releases the halt.
func (e *Engine) DeactivateKillSwitch(actor string) error {
	if err := e.breaker.DeactivateKillSwitch(actor); err != nil {
		return err
	}
	_ = e.audit.Record(actor, audit.EventSystem, "killswitch.deactivate", "", nil)
	e.logger.Info("kill switch deactivated", "actor", actor)
	return nil
}

// OpenProposal puts a question to the participants under the configured
// agreement threshold and voting window.
func (e *Engine) OpenProposal(question string, participants []string) (*consensus.Proposal, error) {
	p, err := e.consensus.OpenProposal(question, participants, e.consensusAgreement, e.clock().Add(e.consensusWindow))
	if err != nil {
		return nil, err
	}
	_ = e.audit.Record("", audit.EventMutation, "consensus.open", p.ID, map[string]any{
		"participants": len(participants),
	})
	return p, nil
}

// ResolveAlert moves a gaming alert through its lifecycle.
func (e *Engine) ResolveAlert(alertID string, status contracts.AlertStatus, actor, notes string) (gaming.Alert, error) {
	alert, err := e.detector.Resolve(alertID, status, actor, notes)
	if err != nil {
		return gaming.Alert{}, err
	}
	_ = e.audit.Record(actor, audit.EventMutation, "alert.resolve", alertID, map[string]any{
		"status": status,
		"notes":  notes,
	})
	return alert, nil
}
