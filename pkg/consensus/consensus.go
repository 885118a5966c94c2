// Package consensus collects votes from a declared set of agents on a
// proposition and derives an outcome under a configurable agreement
// threshold.
//
// Resolution fires automatically once every participant has voted, or at
// the deadline with whoever voted by then; both the result and the
// per-agent votes are immutable afterwards.
package consensus

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// Vote is one participant's position. Unique per (proposal, agent).
type Vote struct {
	AgentID    string                 `json:"agent_id"`
	Decision   contracts.VoteDecision `json:"decision"`
	Confidence float64                `json:"confidence"`
	Reasoning  string                 `json:"reasoning,omitempty"`
	CastAt     time.Time              `json:"cast_at"`
}

// Proposal is a question put to a participant set.
type Proposal struct {
	ID                string                     `json:"id"`
	Question          string                     `json:"question"`
	Context           string                     `json:"context,omitempty"`
	Participants      []string                   `json:"participants"`
	RequiredAgreement float64                    `json:"required_agreement"`
	Deadline          time.Time                  `json:"deadline"`
	Votes             map[string]Vote            `json:"votes"`
	Outcome           contracts.ConsensusOutcome `json:"outcome"`
	AgreementRate     float64                    `json:"agreement_rate"`
	ResolvedAt        *time.Time                 `json:"resolved_at,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
}

func (p *Proposal) participant(agentID string) bool {
	for _, id := range p.Participants {
		if id == agentID {
			return true
		}
	}
	return false
}

// Engine manages proposals and their resolution.
type Engine struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
	emitter   events.Emitter
	clock     func() time.Time
}

// NewEngine creates an empty consensus engine.
func NewEngine() *Engine {
	return &Engine{
		proposals: make(map[string]*Proposal),
		emitter:   events.Discard{},
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithEmitter attaches the outbound event sink.
func (e *Engine) WithEmitter(em events.Emitter) *Engine {
	e.emitter = em
	return e
}

// OpenProposal puts a question to the participants.
func (e *Engine) OpenProposal(question string, participants []string, requiredAgreement float64, deadline time.Time) (*Proposal, error) {
	if len(participants) == 0 {
		return nil, fault.New(fault.Forbidden, "proposal needs at least one participant")
	}
	if requiredAgreement <= 0 || requiredAgreement > 1 {
		return nil, fault.New(fault.Forbidden, "required agreement %v outside (0,1]", requiredAgreement)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Proposal{
		ID:                uuid.New().String(),
		Question:          question,
		Participants:      append([]string(nil), participants...),
		RequiredAgreement: requiredAgreement,
		Deadline:          deadline,
		Votes:             make(map[string]Vote),
		Outcome:           contracts.OutcomePending,
		CreatedAt:         e.clock(),
	}
	e.proposals[p.ID] = p

	cp := e.snapshotLocked(p)
	return cp, nil
}

// CastVote records one participant's vote. Deadline and resolution state
// are checked at write time; resolution fires immediately when the last
// participant votes.
func (e *Engine) CastVote(proposalID, agentID string, decision contracts.VoteDecision, confidence float64, reasoning string) (*Proposal, error) {
	switch decision {
	case contracts.VoteApprove, contracts.VoteReject, contracts.VoteAbstain:
	default:
		return nil, fault.New(fault.Forbidden, "unknown vote decision %q", decision)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.proposals[proposalID]
	if !ok {
		return nil, fault.New(fault.NotFound, "proposal %s not found", proposalID)
	}
	now := e.clock()
	if p.Outcome != contracts.OutcomePending {
		return nil, fault.New(fault.Conflict, "proposal %s already resolved (%s)", proposalID, p.Outcome)
	}
	if now.After(p.Deadline) {
		// The deadline passed before this vote; resolve with whoever
		// voted in time.
		e.resolveLocked(p, now)
		return nil, fault.New(fault.Expired, "proposal %s closed at deadline", proposalID)
	}
	if !p.participant(agentID) {
		return nil, fault.New(fault.Forbidden, "agent %s is not a participant of proposal %s", agentID, proposalID)
	}
	if _, voted := p.Votes[agentID]; voted {
		return nil, fault.New(fault.Conflict, "agent %s already voted on proposal %s", agentID, proposalID)
	}

	p.Votes[agentID] = Vote{
		AgentID:    agentID,
		Decision:   decision,
		Confidence: confidence,
		Reasoning:  reasoning,
		CastAt:     now,
	}

	if len(p.Votes) == len(p.Participants) {
		e.resolveLocked(p, now)
	}

	return e.snapshotLocked(p), nil
}

// resolveLocked computes the outcome. Abstentions count as participation
// but are excluded from the agreement denominator; zero votes at the
// deadline resolves to expired.
func (e *Engine) resolveLocked(p *Proposal, now time.Time) {
	if p.Outcome != contracts.OutcomePending {
		return
	}

	if len(p.Votes) == 0 {
		p.Outcome = contracts.OutcomeExpired
	} else {
		approvals, counted := 0, 0
		for _, v := range p.Votes {
			switch v.Decision {
			case contracts.VoteApprove:
				approvals++
				counted++
			case contracts.VoteReject:
				counted++
			}
		}
		if counted == 0 {
			// Everyone abstained: no measurable agreement.
			p.Outcome = contracts.OutcomeNoConsensus
		} else {
			p.AgreementRate = float64(approvals) / float64(counted)
			if p.AgreementRate >= p.RequiredAgreement {
				p.Outcome = contracts.OutcomeReached
			} else {
				p.Outcome = contracts.OutcomeNoConsensus
			}
		}
	}

	p.ResolvedAt = &now
	e.emitter.Emit(events.New(contracts.EventConsensusResolved, "", *e.snapshotLocked(p)))
}

// SweepDeadlines force-resolves every pending proposal past its
// deadline. Returns the proposals resolved.
func (e *Engine) SweepDeadlines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	var resolved []string
	for id, p := range e.proposals {
		if p.Outcome == contracts.OutcomePending && now.After(p.Deadline) {
			e.resolveLocked(p, now)
			resolved = append(resolved, id)
		}
	}
	return resolved
}

// Get returns a snapshot of a proposal.
func (e *Engine) Get(proposalID string) (*Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.proposals[proposalID]
	if !ok {
		return nil, fault.New(fault.NotFound, "proposal %s not found", proposalID)
	}
	return e.snapshotLocked(p), nil
}

func (e *Engine) snapshotLocked(p *Proposal) *Proposal {
	cp := *p
	cp.Participants = append([]string(nil), p.Participants...)
	cp.Votes = make(map[string]Vote, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
