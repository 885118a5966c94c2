package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

func TestPauseAndResume(t *testing.T) {
	b := New()

	state, err := b.Pause("a1", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)
	assert.True(t, state.Paused)
	assert.Equal(t, contracts.PauseInvestigation, state.Reason)
	assert.False(t, state.PausedAt.IsZero())

	require.NoError(t, b.Resume("a1", "admin"))
	assert.False(t, b.Get("a1").Paused)
}

func TestPauseUnknownReason(t *testing.T) {
	b := New()
	_, err := b.Pause("a1", "coffee_break", "admin", nil)
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))
}

func TestRepauseKeepsEarliestTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	b := New().WithClock(func() time.Time { return current })

	_, err := b.Pause("a1", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)

	current = base.Add(time.Hour)
	state, err := b.Pause("a1", contracts.PauseEmergencyStop, "detector", nil)
	require.NoError(t, err)
	assert.Equal(t, base, state.PausedAt, "re-pause keeps the original timestamp")
	assert.Equal(t, contracts.PauseEmergencyStop, state.Reason, "reason updates")
}

func TestResumeRunningAgent(t *testing.T) {
	b := New()
	err := b.Resume("never-paused", "admin")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestCascadeHalt(t *testing.T) {
	b := New()
	b.DeclareDependency("worker-1", "planner")
	b.DeclareDependency("worker-2", "planner")
	b.DeclareDependency("reporter", "worker-1")

	_, err := b.Pause("planner", contracts.PauseCircuitBreaker, "admin", nil)
	require.NoError(t, err)

	for _, id := range []string{"worker-1", "worker-2", "reporter"} {
		state := b.Get(id)
		assert.True(t, state.Paused, "%s halts with its dependency", id)
		assert.Equal(t, contracts.PauseCascadeHalt, state.Reason)
		assert.Equal(t, "planner", state.ParentAgentID)
	}
}

func TestCascadeSurvivesCycles(t *testing.T) {
	b := New()
	b.DeclareDependency("a", "b")
	b.DeclareDependency("b", "a")
	b.DeclareDependency("c", "b")

	// Must terminate and pause each agent exactly once.
	_, err := b.Pause("a", contracts.PauseCircuitBreaker, "admin", nil)
	require.NoError(t, err)

	assert.True(t, b.Get("b").Paused)
	assert.True(t, b.Get("c").Paused)

	pauses := 0
	for _, e := range b.Log() {
		if e.Kind == EventPaused {
			pauses++
		}
	}
	assert.Equal(t, 3, pauses, "a, b, c each paused once")
}

func TestManualPauseDoesNotCascade(t *testing.T) {
	b := New()
	b.DeclareDependency("worker", "planner")

	_, err := b.Pause("planner", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)
	assert.False(t, b.Get("worker").Paused)
}

func TestResumeOriginLeavesCascadedPaused(t *testing.T) {
	b := New()
	b.DeclareDependency("worker", "planner")

	_, err := b.Pause("planner", contracts.PauseCircuitBreaker, "admin", nil)
	require.NoError(t, err)
	require.NoError(t, b.Resume("planner", "admin"))

	assert.False(t, b.Get("planner").Paused)
	assert.True(t, b.Get("worker").Paused, "cascaded halts need their own resume")
}

func TestSweepExpired(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	b := New().WithClock(func() time.Time { return current })

	expiry := base.Add(time.Hour)
	_, err := b.Pause("a1", contracts.PauseInvestigation, "admin", &expiry)
	require.NoError(t, err)
	_, err = b.Pause("a2", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)

	assert.Empty(t, b.SweepExpired(), "nothing expired yet")

	current = base.Add(2 * time.Hour)
	resumed := b.SweepExpired()
	assert.Equal(t, []string{"a1"}, resumed)
	assert.False(t, b.Get("a1").Paused)
	assert.True(t, b.Get("a2").Paused, "open-ended pause untouched")

	var kinds []EventKind
	for _, e := range b.Log() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, EventAutoResumed)
}

func TestAuthorizePrecedence(t *testing.T) {
	b := New()

	require.NoError(t, b.Authorize("a1", contracts.TierT2, "finance"))

	_, err := b.Pause("a1", contracts.PauseInvestigation, "admin", nil)
	require.NoError(t, err)
	err = b.Authorize("a1", contracts.TierT2, "finance")
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))
}

func TestAuthorizePausedPastExpiry(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	current := base
	b := New().WithClock(func() time.Time { return current })

	expiry := base.Add(time.Hour)
	_, err := b.Pause("a1", contracts.PauseInvestigation, "admin", &expiry)
	require.NoError(t, err)

	require.Error(t, b.Authorize("a1", contracts.TierT2, ""))

	// Expired but not yet swept: authorization already treats it as
	// running.
	current = base.Add(2 * time.Hour)
	assert.NoError(t, b.Authorize("a1", contracts.TierT2, ""))
}

func TestKillSwitchSingleSlot(t *testing.T) {
	b := New()

	ks, err := b.ActivateKillSwitch(KillScope{}, "incident drill", "governor")
	require.NoError(t, err)
	assert.NotEmpty(t, ks.ID)

	_, err = b.ActivateKillSwitch(KillScope{}, "second", "governor")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))

	require.NoError(t, b.DeactivateKillSwitch("governor"))
	err = b.DeactivateKillSwitch("governor")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))

	_, active := b.ActiveKillSwitch()
	assert.False(t, active)
}

func TestKillSwitchScope(t *testing.T) {
	b := New()

	_, err := b.ActivateKillSwitch(KillScope{Tier: contracts.TierT4, Specialization: "finance"}, "scoped halt", "governor")
	require.NoError(t, err)

	err = b.Authorize("a1", contracts.TierT4, "finance")
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	assert.NoError(t, b.Authorize("a2", contracts.TierT4, "support"))
	assert.NoError(t, b.Authorize("a3", contracts.TierT2, "finance"))
}

func TestKillSwitchOverridesRunningState(t *testing.T) {
	b := New()
	_, err := b.ActivateKillSwitch(KillScope{}, "full stop", "governor")
	require.NoError(t, err)

	// Never-paused agents are still denied while the switch is live.
	err = b.Authorize("fresh-agent", contracts.TierT0, "")
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	require.NoError(t, b.DeactivateKillSwitch("governor"))
	assert.NoError(t, b.Authorize("fresh-agent", contracts.TierT0, ""))
}
