package contracts

import "time"

// EventType names an outbound governance event.
type EventType string

const (
	EventAgentPaused       EventType = "AgentPaused"
	EventAgentResumed      EventType = "AgentResumed"
	EventTrustScoreChanged EventType = "TrustScoreChanged"
	EventGamingAlertRaised EventType = "GamingAlertRaised"
	EventRoleGateDecision  EventType = "RoleGateDecision"
	EventConsensusResolved EventType = "ConsensusResolved"
	EventKillSwitch        EventType = "KillSwitchChanged"
	EventCascadeStepFailed EventType = "CascadeStepFailed"
)

// Event is the envelope emitted to the audit sink and notification
// dispatcher. Record carries the full relevant domain record so the
// consumer never needs a follow-up forensic query.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	AgentID   string    `json:"agent_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Record    any       `json:"record"`
}
