package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/hierarchy"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(Options{BasisSecret: []byte("test-secret")})
	require.NoError(t, err)
	return e
}

// buildContext builds a deployment -> org -> agent context chain and
// returns the frozen agent node id.
func buildContext(t *testing.T, e *Engine, orgParams hierarchy.Params) string {
	t.Helper()
	depID, err := e.Hierarchy().CreateDeployment("dep-1", hierarchy.Params{"region": "eu"})
	require.NoError(t, err)
	orgID, err := e.Hierarchy().CreateOrUpdateOrg(depID, "acme", orgParams)
	require.NoError(t, err)
	ctxID, err := e.Hierarchy().FreezeAgentContext(orgID, "agent-ctx", hierarchy.Params{"capabilities": []string{"read"}})
	require.NoError(t, err)
	return ctxID
}

func TestNewRequiresBasisSecret(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestOnboardFreshAgent(t *testing.T) {
	e := newTestEngine(t)
	ctxID := buildContext(t, e, hierarchy.Params{"name": "acme"})

	res, err := e.OnboardAgent(OnboardRequest{
		AgentID:      "a1",
		ContextID:    ctxID,
		CreationType: contracts.CreationFresh,
		Creator:      "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Record.Generation)
	assert.Equal(t, 0, res.InitialEntry.FinalScore, "fresh agents start from nothing")

	_, tier, err := e.Trust().CurrentScore("a1")
	require.NoError(t, err)
	assert.Equal(t, contracts.TierT0, tier)
}

func TestOnboardClonedAgentInheritsDecayedTrust(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.OnboardAgent(OnboardRequest{
		AgentID: "mentor", CreationType: contracts.CreationFresh, Creator: "ops",
	})
	require.NoError(t, err)
	_, _, err = e.ProposeScore("mentor", 800, "long_service", "")
	require.NoError(t, err)

	res, err := e.OnboardAgent(OnboardRequest{
		AgentID:       "clone",
		CreationType:  contracts.CreationCloned,
		ParentAgentID: "mentor",
		Creator:       "ops",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Record.Generation)
	// 800 * 0.2 inheritance * 0.9 decay = 144, minus the clone modifier 50.
	assert.Equal(t, 94, res.InitialEntry.FinalScore)
}

func TestOnboardUnknownParent(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.OnboardAgent(OnboardRequest{
		AgentID: "orphan", CreationType: contracts.CreationCloned,
		ParentAgentID: "ghost", Creator: "ops",
	})
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestOrgFrameworkCeilingAppliesThroughBinding(t *testing.T) {
	e := newTestEngine(t)
	ctxID := buildContext(t, e, hierarchy.Params{
		"compliance_frameworks": []string{"eu-ai-act"},
	})

	_, err := e.OnboardAgent(OnboardRequest{
		AgentID: "a1", ContextID: ctxID,
		CreationType: contracts.CreationFresh, Creator: "ops",
	})
	require.NoError(t, err)

	entry, _, err := e.ProposeScore("a1", 720, "review", "")
	require.NoError(t, err)
	assert.Equal(t, 699, entry.FinalScore)
	assert.Equal(t, contracts.CeilingRegulatory, entry.CeilingSource)
	assert.Equal(t, contracts.ComplianceWarning, entry.Compliance)
}

func TestAgentContextCeilingAppliesThroughBinding(t *testing.T) {
	e := newTestEngine(t)
	depID, err := e.Hierarchy().CreateDeployment("dep-1", nil)
	require.NoError(t, err)
	orgID, err := e.Hierarchy().CreateOrUpdateOrg(depID, "acme", hierarchy.Params{"trust_ceiling": 800})
	require.NoError(t, err)
	ctxID, err := e.Hierarchy().FreezeAgentContext(orgID, "agent-ctx", hierarchy.Params{"trust_ceiling": 600})
	require.NoError(t, err)

	_, err = e.OnboardAgent(OnboardRequest{
		AgentID: "a1", ContextID: ctxID,
		CreationType: contracts.CreationFresh, Creator: "ops",
	})
	require.NoError(t, err)

	entry, _, err := e.ProposeScore("a1", 700, "review", "")
	require.NoError(t, err)
	assert.Equal(t, 600, entry.FinalScore, "the tightest ceiling wins")
	assert.Equal(t, contracts.CeilingAgent, entry.CeilingSource)
}

func TestBindAgentContextRules(t *testing.T) {
	e := newTestEngine(t)
	first := buildContext(t, e, nil)

	require.NoError(t, e.BindAgentContext("a1", first))
	require.NoError(t, e.BindAgentContext("a1", first), "re-binding to the same node is idempotent")

	depID, _ := e.Hierarchy().CreateDeployment("dep-2", nil)
	orgID, _ := e.Hierarchy().CreateOrUpdateOrg(depID, "other", nil)
	second, err := e.Hierarchy().FreezeAgentContext(orgID, "other-ctx", nil)
	require.NoError(t, err)

	err = e.BindAgentContext("a1", second)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))

	err = e.BindAgentContext("a2", depID)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err), "only agent-scope nodes bind")
}

func TestAuthorizeUnknownAgentFailsClosed(t *testing.T) {
	e := newTestEngine(t)

	eval, err := e.Authorize("stranger", contracts.RoleTaskExecutor, "", nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision, "no history means T0, below the executor floor")

	eval, err = e.Authorize("stranger", contracts.RoleListener, "", nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionAllow, eval.Decision)
}

func TestAuthorizeBlockedWhilePaused(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.ProposeScore("a1", 400, "seed", "")
	require.NoError(t, err)

	_, err = e.PauseAgent("a1", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)

	_, err = e.Authorize("a1", contracts.RoleTaskExecutor, "", nil)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	require.NoError(t, e.ResumeAgent("a1", "admin"))
	eval, err := e.Authorize("a1", contracts.RoleTaskExecutor, "", nil)
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionAllow, eval.Decision)
}

func TestProposeScoreSurfacesAlerts(t *testing.T) {
	e := newTestEngine(t)

	var alerts int
	for _, score := range []int{200, 400, 600, 800} {
		_, raised, err := e.ProposeScore("a1", score, "batch", "")
		require.NoError(t, err)
		alerts += len(raised)
	}
	assert.Greater(t, alerts, 0, "four over-cap jumps trip the detector")
}

func TestProfileTuningWired(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	e, err := New(Options{
		BasisSecret:        []byte("test-secret"),
		Clock:              func() time.Time { return current },
		FrameworkCeilings:  map[contracts.Framework]int{contracts.FrameworkEUAIAct: 500},
		OrgGracePeriod:     time.Hour,
		OperationTTL:       5 * time.Minute,
		OverrideValidity:   30 * time.Minute,
		ConsensusAgreement: 0.9,
		ConsensusWindow:    10 * time.Minute,
	})
	require.NoError(t, err)

	// An org without frozen agents, for the grace-period check below.
	depID, err := e.Hierarchy().CreateDeployment("dep-grace", nil)
	require.NoError(t, err)
	_, err = e.Hierarchy().CreateOrUpdateOrg(depID, "solo", hierarchy.Params{"trust_ceiling": 800})
	require.NoError(t, err)

	// Framework ceiling overlay reaches score proposals via the binding.
	ctxID := buildContext(t, e, hierarchy.Params{
		"compliance_frameworks": []string{"eu-ai-act"},
	})
	_, err = e.OnboardAgent(OnboardRequest{
		AgentID: "a1", ContextID: ctxID,
		CreationType: contracts.CreationFresh, Creator: "ops",
	})
	require.NoError(t, err)
	entry, _, err := e.ProposeScore("a1", 600, "review", "")
	require.NoError(t, err)
	assert.Equal(t, 500, entry.FinalScore, "profile ceiling replaces the built-in 699")

	// Operation TTL applies when the caller passes none.
	opID, err := e.Hierarchy().OpenOperation(ctxID, "op-1", contracts.RoleListener, 0)
	require.NoError(t, err)
	op, err := e.Hierarchy().Get(opID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Minute), op.ExpiresAt)

	// Override validity applies when Create passes none.
	o, err := e.Gate().Overrides().Create("a1", contracts.RoleTaskExecutor, "maintenance window", "ops", 0)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, o.ValidUntil.Sub(o.ValidFrom))

	// Consensus threshold and voting window.
	p, err := e.OpenProposal("adopt policy v2", []string{"v1", "v2"})
	require.NoError(t, err)
	assert.Equal(t, 0.9, p.RequiredAgreement)
	assert.Equal(t, base.Add(10*time.Minute), p.Deadline)

	// Grace period: one hour, not the 72-hour default.
	current = base.Add(2 * time.Hour)
	_, err = e.Hierarchy().CreateOrUpdateOrg(depID, "solo", hierarchy.Params{"trust_ceiling": 600})
	assert.Equal(t, fault.Locked, fault.KindOf(err))
}

func TestProgressionThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	_, _, err := e.ProposeScore("a1", 350, "seed", "")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		e.CompleteTask("a1")
	}

	res, err := e.Progression("a1")
	require.NoError(t, err)
	assert.True(t, res.Eligible)
	assert.Equal(t, contracts.TierT2, res.NextTier)
}
