package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/vorion-labs/cognigate/pkg/breaker"
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/directory"
	"github.com/vorion-labs/cognigate/pkg/engine"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/hierarchy"
)

// runSimulateCmd implements `cognigate simulate`: a self-contained
// scenario through the whole engine, useful for smoke-testing a
// configuration and for demos. Everything runs in memory.
func runSimulateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonMode bool
	cmd.BoolVar(&jsonMode, "json", false, "Output emitted events as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	buffer := events.NewBuffer()
	dir := directory.NewStatic()
	eng, err := engine.New(engine.Options{
		BasisSecret: []byte("simulation-only-secret"),
		Agents:      dir,
		Orgs:        dir,
		Emitter:     buffer,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return fault.ExitCode(err)
	}

	if code := simulate(eng, dir, stdout, stderr); code != 0 {
		return code
	}

	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(buffer.Events())
	}
	return 0
}

func simulate(eng *engine.Engine, dir *directory.Static, stdout, stderr io.Writer) int {
	fail := func(err error) int {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return fault.ExitCode(err)
	}

	// Context chain: deployment -> organization (EU AI Act) -> agent.
	h := eng.Hierarchy()
	depID, err := h.CreateDeployment("sim-deployment", hierarchy.Params{"region": "eu-west"})
	if err != nil {
		return fail(err)
	}
	orgID, err := h.CreateOrUpdateOrg(depID, "sim-org", hierarchy.Params{
		"compliance_frameworks": []string{"eu-ai-act"},
	})
	if err != nil {
		return fail(err)
	}
	agentCtx, err := h.FreezeAgentContext(orgID, "agent-alpha", hierarchy.Params{
		"capabilities": []string{"analyze", "report"},
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "context chain: %s -> %s -> %s\n", depID, orgID, agentCtx)

	dir.RegisterAgent(contracts.CapabilitySet{AgentID: "agent-alpha", Specialization: "analysis"})

	// Fresh parent agent, earns trust, then hits the regulatory ceiling.
	if _, err := eng.OnboardAgent(engine.OnboardRequest{
		AgentID:      "agent-alpha",
		ContextID:    agentCtx,
		CreationType: contracts.CreationFresh,
		Creator:      "simulate",
	}); err != nil {
		return fail(err)
	}
	for _, score := range []int{120, 260, 400, 540, 680} {
		if _, _, err := eng.ProposeScore("agent-alpha", score, "task_batch", ""); err != nil {
			return fail(err)
		}
	}
	check, err := eng.Trust().CheckCeiling("agent-alpha", 720, "")
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "ceiling check: 720 would land at %d (tier %s instead of %s)\n",
		check.Effective, check.EffectiveTier, check.OriginalTier)
	entry, _, err := eng.ProposeScore("agent-alpha", 720, "task_batch", "")
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "ceiling: proposed 720, recorded %d (%s, %s)\n",
		entry.FinalScore, entry.CeilingSource, entry.Compliance)

	// Cloned child inherits decayed parental trust.
	res, err := eng.OnboardAgent(engine.OnboardRequest{
		AgentID:       "agent-beta",
		CreationType:  contracts.CreationCloned,
		ParentAgentID: "agent-alpha",
		Creator:       "simulate",
	})
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "clone: generation %d seeded at %d\n",
		res.Record.Generation, res.InitialEntry.FinalScore)

	// Role gate: the kernel floor denies an over-privileged role.
	eval, err := eng.Authorize("agent-beta", contracts.RoleSystemAdministrator, "", nil)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "gate: role %s -> %s (%s)\n", contracts.RoleSystemAdministrator, eval.Decision, eval.Reason)

	// Circuit breaker cascade.
	eng.Breaker().DeclareDependency("agent-beta", "agent-alpha")
	if _, err := eng.PauseAgent("agent-alpha", contracts.PauseCircuitBreaker, "simulate", nil); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "cascade: beta paused=%v reason=%s\n",
		eng.Breaker().Get("agent-beta").Paused, eng.Breaker().Get("agent-beta").Reason)

	if _, err := eng.Authorize("agent-beta", contracts.RoleListener, "", nil); err != nil {
		fmt.Fprintf(stdout, "authorize while paused: %v\n", err)
	}
	if err := eng.ResumeAgent("agent-alpha", "simulate"); err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "resume: alpha running, beta paused=%v (cascade never auto-resumes)\n",
		eng.Breaker().Get("agent-beta").Paused)

	// Consensus: 3 approve, 1 reject, 1 abstain -> 0.75 agreement.
	prop, err := eng.OpenProposal("promote agent-alpha to T4",
		[]string{"v1", "v2", "v3", "v4", "v5"})
	if err != nil {
		return fail(err)
	}
	votes := []struct {
		voter    string
		decision contracts.VoteDecision
	}{
		{"v1", contracts.VoteApprove},
		{"v2", contracts.VoteApprove},
		{"v3", contracts.VoteApprove},
		{"v4", contracts.VoteReject},
		{"v5", contracts.VoteAbstain},
	}
	var outcome contracts.ConsensusOutcome
	var agreement float64
	for _, v := range votes {
		p, err := eng.Consensus().CastVote(prop.ID, v.voter, v.decision, 0.9, "")
		if err != nil {
			return fail(err)
		}
		outcome, agreement = p.Outcome, p.AgreementRate
	}
	fmt.Fprintf(stdout, "consensus: %s (agreement %.2f)\n", outcome, agreement)

	// Kill switch denies everything in scope.
	if _, err := eng.ActivateKillSwitch(breaker.KillScope{}, "simulation drill", "simulate"); err != nil {
		return fail(err)
	}
	if _, err := eng.Authorize("agent-alpha", contracts.RoleListener, "", nil); err != nil {
		fmt.Fprintf(stdout, "kill switch: %v\n", err)
	}
	if err := eng.DeactivateKillSwitch("simulate"); err != nil {
		return fail(err)
	}

	snap := eng.Snapshot()
	fmt.Fprintf(stdout, "snapshot: %d agents, %d paused, %d active alerts\n",
		snap.Hierarchy.Agents, snap.PausedAgents, snap.ActiveAlerts)
	return 0
}
