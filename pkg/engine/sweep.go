package engine

import (
	"context"
	"time"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/hierarchy"
)

// SweepReport lists what one maintenance pass cleaned up.
type SweepReport struct {
	ExpiredOperations []string `json:"expired_operations,omitempty"`
	AutoResumedAgents []string `json:"auto_resumed_agents,omitempty"`
	ResolvedProposals []string `json:"resolved_proposals,omitempty"`
}

// Sweep runs one maintenance pass: expire overdue operation contexts,
// auto-resume pauses past their expiry, resolve consensus proposals past
// their deadline.
func (e *Engine) Sweep() SweepReport {
	report := SweepReport{
		ExpiredOperations: e.hierarchy.ExpireOperations(),
		AutoResumedAgents: e.breaker.SweepExpired(),
		ResolvedProposals: e.consensus.SweepDeadlines(),
	}
	if len(report.ExpiredOperations)+len(report.AutoResumedAgents)+len(report.ResolvedProposals) > 0 {
		e.logger.Info("sweep completed",
			"expired_operations", len(report.ExpiredOperations),
			"auto_resumed", len(report.AutoResumedAgents),
			"resolved_proposals", len(report.ResolvedProposals),
		)
	}
	return report
}

// Run sweeps on the given interval until the context is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Status is the aggregated operational snapshot.
type Status struct {
	Hierarchy        hierarchy.Stats                       `json:"hierarchy"`
	Provenance       map[contracts.CreationType]int        `json:"provenance"`
	Compliance       map[contracts.ComplianceStatus]int    `json:"compliance"`
	GateDecisions    map[contracts.GateDecision]int        `json:"gate_decisions"`
	PausedAgents     int                                   `json:"paused_agents"`
	AgentsWithAlerts int                                   `json:"agents_with_alerts"`
	ActiveAlerts     int                                   `json:"active_alerts"`
	KillSwitchActive bool                                  `json:"kill_switch_active"`
}

// Snapshot gathers counters from every component.
func (e *Engine) Snapshot() Status {
	_, ksActive := e.breaker.ActiveKillSwitch()
	return Status{
		Hierarchy:        e.hierarchy.Stats(),
		Provenance:       e.provenance.Stats(),
		Compliance:       e.trust.ComplianceBreakdown(),
		GateDecisions:    e.gate.DecisionBreakdown(),
		PausedAgents:     len(e.breaker.Paused()),
		AgentsWithAlerts: e.detector.AgentsWithAlerts(),
		ActiveAlerts:     len(e.detector.Alerts(contracts.AlertActive)),
		KillSwitchActive: ksActive,
	}
}
