package trust

import (
	"fmt"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// ProgressionResult explains whether an agent can move up a tier and, if
// not, exactly what blocks it.
type ProgressionResult struct {
	AgentID      string              `json:"agent_id"`
	CurrentTier  contracts.TrustTier `json:"current_tier"`
	CurrentScore int                 `json:"current_score"`
	NextTier     contracts.TrustTier `json:"next_tier,omitempty"`
	Eligible     bool                `json:"eligible"`
	// TrustGap is how many points short of the next tier's minimum the
	// agent is. Zero when the score requirement is met.
	TrustGap int `json:"trust_gap"`
	// AtCeilingNeedsOverride is set when the next tier's minimum score
	// lies above the agent's effective ceiling: no amount of earned trust
	// can reach it without a ceiling change.
	AtCeilingNeedsOverride bool     `json:"at_ceiling_needs_override"`
	BlockingReasons        []string `json:"blocking_reasons,omitempty"`
}

// CanProgress checks the agent against the per-level requirement table:
// minimum trust score and minimum completed task count for the next
// tier, plus whether the ceiling even permits reaching it.
func (l *Ledger) CanProgress(agentID string) (ProgressionResult, error) {
	score, tier, err := l.CurrentScore(agentID)
	if err != nil {
		return ProgressionResult{}, err
	}

	res := ProgressionResult{
		AgentID:      agentID,
		CurrentTier:  tier,
		CurrentScore: score,
	}

	next := l.boundaries.Next(tier)
	if next == "" {
		res.BlockingReasons = append(res.BlockingReasons, "already at highest tier")
		return res, nil
	}
	res.NextTier = next

	req, ok := l.boundaries.RequirementFor(next)
	if !ok {
		res.BlockingReasons = append(res.BlockingReasons, fmt.Sprintf("no progression requirement defined for %s", next))
		return res, nil
	}

	if score < req.MinScore {
		res.TrustGap = req.MinScore - score
		res.BlockingReasons = append(res.BlockingReasons,
			fmt.Sprintf("trust score %d below required %d (gap %d)", score, req.MinScore, res.TrustGap))
	}

	if tasks := l.TaskCount(agentID); tasks < req.MinTaskCount {
		res.BlockingReasons = append(res.BlockingReasons,
			fmt.Sprintf("task count %d below required %d", tasks, req.MinTaskCount))
	}

	ceiling := l.resolveCeiling(agentID, "")
	if req.MinScore > ceiling.Value {
		res.AtCeilingNeedsOverride = true
		res.BlockingReasons = append(res.BlockingReasons,
			fmt.Sprintf("required score %d exceeds effective ceiling %d (%s)", req.MinScore, ceiling.Value, ceiling.Source))
	}

	res.Eligible = len(res.BlockingReasons) == 0
	return res, nil
}
