package rolegate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

var testSecret = []byte("test-basis-secret")

func testBundle() *Bundle {
	return &Bundle{
		Version: "1.2.0",
		Policies: []Policy{
			{
				Name:    "deny-low-score-executors",
				When:    `role == "R_L2" && score < 150`,
				Outcome: contracts.DecisionDeny,
			},
			{
				Name:    "escalate-production-context",
				When:    `context.environment == "production"`,
				Outcome: contracts.DecisionEscalate,
			},
		},
	}
}

func newTestGate(t *testing.T, clock func() time.Time) *Gate {
	t.Helper()
	overrides := NewOverrideRegistry(testSecret).WithClock(clock)
	g, err := NewGate(testBundle(), overrides)
	require.NoError(t, err)
	return g.WithClock(clock)
}

func TestBundleValidate(t *testing.T) {
	b := testBundle()
	require.NoError(t, b.Validate())

	bad := &Bundle{Version: "not-semver"}
	assert.Error(t, bad.Validate())

	bad = &Bundle{Version: "1.0.0", Policies: []Policy{{Name: "x", When: "true", Outcome: "MAYBE"}}}
	assert.Error(t, bad.Validate())
}

func TestKernelDenyIsTerminal(t *testing.T) {
	g := newTestGate(t, time.Now)

	// Even with an active override, the kernel floor stands.
	o, err := g.Overrides().Create("a1", contracts.RoleSystemAdministrator, "incident", "admin", 0)
	require.NoError(t, err)
	approveTwice(t, g.Overrides(), o.ID)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleSystemAdministrator,
		Tier:          contracts.TierT2,
		Score:         450,
	})
	require.NoError(t, err)
	assert.False(t, eval.KernelAllowed)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision)
	assert.False(t, eval.OverrideUsed, "basis layer never reached on kernel deny")
	assert.Empty(t, eval.PolicyDecision, "policy layer never reached on kernel deny")
}

func TestPolicyDenyWins(t *testing.T) {
	g := newTestGate(t, time.Now)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT1,
		Score:         120, // below the policy's 150
		Context:       map[string]any{"environment": "production"},
	})
	require.NoError(t, err)
	assert.True(t, eval.KernelAllowed)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision)
	require.Len(t, eval.PoliciesApplied, 2, "both matching policies recorded")
}

func TestPolicyEscalate(t *testing.T) {
	g := newTestGate(t, time.Now)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT2,
		Score:         400,
		Context:       map[string]any{"environment": "production"},
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionEscalate, eval.Decision)
}

func TestCleanAllow(t *testing.T) {
	g := newTestGate(t, time.Now)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT2,
		Score:         400,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionAllow, eval.Decision)
	assert.Equal(t, "1.2.0", eval.PolicyVersion)
}

func TestOverrideConvertsPolicyDeny(t *testing.T) {
	g := newTestGate(t, time.Now)

	o, err := g.Overrides().Create("a1", contracts.RoleTaskExecutor, "supervised pilot", "admin", 0)
	require.NoError(t, err)
	approveTwice(t, g.Overrides(), o.ID)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT1,
		Score:         120,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionDeny, eval.PolicyDecision)
	assert.Equal(t, contracts.DecisionAllow, eval.Decision)
	assert.True(t, eval.OverrideUsed)
	assert.Equal(t, o.ID, eval.OverrideID)
	assert.Len(t, eval.OverrideBy, 2)
}

func TestIncompleteOverrideHasNoEffect(t *testing.T) {
	g := newTestGate(t, time.Now)

	o, err := g.Overrides().Create("a1", contracts.RoleTaskExecutor, "pilot", "admin", 0)
	require.NoError(t, err)
	tok, err := g.Overrides().IssueApproverToken("approver-1", time.Hour)
	require.NoError(t, err)
	_, err = g.Overrides().Approve(o.ID, tok)
	require.NoError(t, err)

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT1,
		Score:         120,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision, "one approval is not dual control")
	assert.False(t, eval.OverrideUsed)
}

func TestDuplicateApproverRejected(t *testing.T) {
	r := NewOverrideRegistry(testSecret)
	o, err := r.Create("a1", contracts.RoleTaskExecutor, "pilot", "admin", 0)
	require.NoError(t, err)

	tok, err := r.IssueApproverToken("approver-1", time.Hour)
	require.NoError(t, err)
	_, err = r.Approve(o.ID, tok)
	require.NoError(t, err)

	tok2, err := r.IssueApproverToken("approver-1", time.Hour)
	require.NoError(t, err)
	_, err = r.Approve(o.ID, tok2)
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestRevokedOverrideRejected(t *testing.T) {
	g := newTestGate(t, time.Now)

	o, err := g.Overrides().Create("a1", contracts.RoleTaskExecutor, "pilot", "admin", 0)
	require.NoError(t, err)
	approveTwice(t, g.Overrides(), o.ID)
	require.NoError(t, g.Overrides().Revoke(o.ID, "security"))

	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT1,
		Score:         120,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision)
	assert.False(t, eval.OverrideUsed)
}

func TestExpiredOverrideRejected(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	current := base
	clock := func() time.Time { return current }
	g := newTestGate(t, clock)

	o, err := g.Overrides().Create("a1", contracts.RoleTaskExecutor, "pilot", "admin", time.Hour)
	require.NoError(t, err)
	tok1, _ := g.Overrides().IssueApproverToken("approver-1", 2*time.Hour)
	_, err = g.Overrides().Approve(o.ID, tok1)
	require.NoError(t, err)
	current = current.Add(time.Minute)
	tok2, _ := g.Overrides().IssueApproverToken("approver-2", 2*time.Hour)
	_, err = g.Overrides().Approve(o.ID, tok2)
	require.NoError(t, err)

	current = base.Add(2 * time.Hour)
	eval, err := g.Evaluate(Request{
		AgentID:       "a1",
		RequestedRole: contracts.RoleTaskExecutor,
		Tier:          contracts.TierT1,
		Score:         120,
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.DecisionDeny, eval.Decision, "override window closed")
}

func TestForgedApproverTokenRejected(t *testing.T) {
	r := NewOverrideRegistry(testSecret)
	o, err := r.Create("a1", contracts.RoleTaskExecutor, "pilot", "admin", 0)
	require.NoError(t, err)

	forger := NewOverrideRegistry([]byte("different-secret"))
	tok, err := forger.IssueApproverToken("approver-1", time.Hour)
	require.NoError(t, err)

	_, err = r.Approve(o.ID, tok)
	assert.Equal(t, fault.InvalidOverride, fault.KindOf(err))
}

func TestEvaluationRecords(t *testing.T) {
	g := newTestGate(t, time.Now)

	_, err := g.Evaluate(Request{AgentID: "a1", RequestedRole: contracts.RoleListener, Tier: contracts.TierT0})
	require.NoError(t, err)
	_, err = g.Evaluate(Request{AgentID: "a1", RequestedRole: contracts.RoleSystemAdministrator, Tier: contracts.TierT0})
	require.NoError(t, err)

	evals := g.Evaluations()
	require.Len(t, evals, 2)

	breakdown := g.DecisionBreakdown()
	assert.Equal(t, 1, breakdown[contracts.DecisionAllow])
	assert.Equal(t, 1, breakdown[contracts.DecisionDeny])
}

// approveTwice records two distinct approvals, nudging real time between
// them so the second lands strictly later.
func approveTwice(t *testing.T, r *OverrideRegistry, overrideID string) {
	t.Helper()
	tok1, err := r.IssueApproverToken("approver-1", time.Hour)
	require.NoError(t, err)
	_, err = r.Approve(overrideID, tok1)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	tok2, err := r.IssueApproverToken("approver-2", time.Hour)
	require.NoError(t, err)
	_, err = r.Approve(overrideID, tok2)
	require.NoError(t, err)
}
