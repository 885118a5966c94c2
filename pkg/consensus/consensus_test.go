package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

func fixedEngine(base time.Time) (*Engine, *time.Time) {
	current := base
	e := NewEngine().WithClock(func() time.Time { return current })
	return e, &current
}

func TestOpenProposalValidation(t *testing.T) {
	e := NewEngine()

	_, err := e.OpenProposal("q", nil, 0.6, time.Now().Add(time.Hour))
	assert.Error(t, err)

	_, err = e.OpenProposal("q", []string{"a1"}, 0, time.Now().Add(time.Hour))
	assert.Error(t, err)

	_, err = e.OpenProposal("q", []string{"a1"}, 1.5, time.Now().Add(time.Hour))
	assert.Error(t, err)

	p, err := e.OpenProposal("q", []string{"a1"}, 1.0, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomePending, p.Outcome)
}

func TestAbstainExcludedFromAgreement(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	participants := []string{"a1", "a2", "a3", "a4", "a5"}
	p, err := e.OpenProposal("promote worker-7 to T3", participants, 0.6, base.Add(time.Hour))
	require.NoError(t, err)

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err = e.CastVote(p.ID, id, contracts.VoteApprove, 0.9, "")
		require.NoError(t, err)
	}
	_, err = e.CastVote(p.ID, "a4", contracts.VoteReject, 0.8, "too soon")
	require.NoError(t, err)
	got, err := e.CastVote(p.ID, "a5", contracts.VoteAbstain, 0, "no visibility")
	require.NoError(t, err)

	// 3 approve / (3 approve + 1 reject): the abstention never dilutes.
	assert.Equal(t, contracts.OutcomeReached, got.Outcome)
	assert.InDelta(t, 0.75, got.AgreementRate, 1e-9)
	require.NotNil(t, got.ResolvedAt)
}

func TestNoConsensusBelowThreshold(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1", "a2"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)

	_, err = e.CastVote(p.ID, "a1", contracts.VoteApprove, 1, "")
	require.NoError(t, err)
	got, err := e.CastVote(p.ID, "a2", contracts.VoteReject, 1, "")
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeNoConsensus, got.Outcome)
	assert.InDelta(t, 0.5, got.AgreementRate, 1e-9)
}

func TestAllAbstainIsNoConsensus(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1", "a2"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)

	_, err = e.CastVote(p.ID, "a1", contracts.VoteAbstain, 0, "")
	require.NoError(t, err)
	got, err := e.CastVote(p.ID, "a2", contracts.VoteAbstain, 0, "")
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeNoConsensus, got.Outcome)
	assert.Zero(t, got.AgreementRate)
}

func TestVoteRejections(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1", "a2", "a3"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)

	_, err = e.CastVote("missing", "a1", contracts.VoteApprove, 1, "")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))

	_, err = e.CastVote(p.ID, "a1", "maybe", 1, "")
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	_, err = e.CastVote(p.ID, "outsider", contracts.VoteApprove, 1, "")
	assert.Equal(t, fault.Forbidden, fault.KindOf(err))

	_, err = e.CastVote(p.ID, "a1", contracts.VoteApprove, 1, "")
	require.NoError(t, err)
	_, err = e.CastVote(p.ID, "a1", contracts.VoteReject, 1, "changed my mind")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestVoteAfterResolutionConflicts(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)
	_, err = e.CastVote(p.ID, "a1", contracts.VoteApprove, 1, "")
	require.NoError(t, err)

	_, err = e.CastVote(p.ID, "a1", contracts.VoteApprove, 1, "")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestLateVoteResolvesWithPartialBallots(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, current := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1", "a2", "a3"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)
	_, err = e.CastVote(p.ID, "a1", contracts.VoteApprove, 1, "")
	require.NoError(t, err)

	*current = base.Add(2 * time.Hour)
	_, err = e.CastVote(p.ID, "a2", contracts.VoteApprove, 1, "")
	assert.Equal(t, fault.Expired, fault.KindOf(err))

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeReached, got.Outcome, "resolved from the single in-time approval")
	assert.Len(t, got.Votes, 1, "the late ballot was never recorded")
}

func TestSweepDeadlines(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, current := fixedEngine(base)

	unvoted, err := e.OpenProposal("q1", []string{"a1"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)
	open, err := e.OpenProposal("q2", []string{"a1"}, 0.6, base.Add(3*time.Hour))
	require.NoError(t, err)

	*current = base.Add(2 * time.Hour)
	resolved := e.SweepDeadlines()
	assert.Equal(t, []string{unvoted.ID}, resolved)

	got, err := e.Get(unvoted.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomeExpired, got.Outcome, "zero ballots at the deadline")

	got, err = e.Get(open.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.OutcomePending, got.Outcome)
}

func TestSnapshotIsolation(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e, _ := fixedEngine(base)

	p, err := e.OpenProposal("q", []string{"a1", "a2"}, 0.6, base.Add(time.Hour))
	require.NoError(t, err)

	p.Participants[0] = "tampered"
	p.Votes["forged"] = Vote{AgentID: "forged", Decision: contracts.VoteApprove}

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, "a1", got.Participants[0])
	assert.Empty(t, got.Votes)
}
