// Package contracts defines the shared domain types of the Cognigate
// trust engine: trust tiers, agent roles, provenance creation types,
// gate decisions, and the enumerated statuses used by the breaker,
// detector, and consensus components.
//
// Every status column of the persisted model maps to a closed string
// type here; the state machines switch exhaustively over them.
package contracts

import "time"

// TrustTier is a discrete trust band derived from a numeric score.
type TrustTier string

const (
	TierT0 TrustTier = "T0" // Sandbox (0-99)
	TierT1 TrustTier = "T1" // Probation (100-299)
	TierT2 TrustTier = "T2" // Limited (300-499)
	TierT3 TrustTier = "T3" // Standard (500-699)
	TierT4 TrustTier = "T4" // Trusted (700-899)
	TierT5 TrustTier = "T5" // Sovereign (900-1000)
)

// AllTiers lists tiers in ascending order.
var AllTiers = []TrustTier{TierT0, TierT1, TierT2, TierT3, TierT4, TierT5}

// Index returns the ordinal position of the tier (T0=0 .. T5=5), or -1.
func (t TrustTier) Index() int {
	for i, tier := range AllTiers {
		if tier == t {
			return i
		}
	}
	return -1
}

// AgentRole is a capability level an agent may request (R_L0-R_L8).
type AgentRole string

const (
	RoleListener            AgentRole = "R_L0"
	RoleResponder           AgentRole = "R_L1"
	RoleTaskExecutor        AgentRole = "R_L2"
	RoleWorkflowManager     AgentRole = "R_L3"
	RoleDomainExpert        AgentRole = "R_L4"
	RoleResourceController  AgentRole = "R_L5"
	RoleSystemAdministrator AgentRole = "R_L6"
	RoleTrustGovernor       AgentRole = "R_L7"
	RoleEcosystemController AgentRole = "R_L8"
)

// AllRoles lists roles in ascending privilege order.
var AllRoles = []AgentRole{
	RoleListener, RoleResponder, RoleTaskExecutor, RoleWorkflowManager,
	RoleDomainExpert, RoleResourceController, RoleSystemAdministrator,
	RoleTrustGovernor, RoleEcosystemController,
}

// RoleLabels maps roles to their human-readable names.
var RoleLabels = map[AgentRole]string{
	RoleListener:            "Listener",
	RoleResponder:           "Responder",
	RoleTaskExecutor:        "Task Executor",
	RoleWorkflowManager:     "Workflow Manager",
	RoleDomainExpert:        "Domain Expert",
	RoleResourceController:  "Resource Controller",
	RoleSystemAdministrator: "System Administrator",
	RoleTrustGovernor:       "Trust Governor",
	RoleEcosystemController: "Ecosystem Controller",
}

// CreationType records how an agent came into existence.
type CreationType string

const (
	CreationFresh    CreationType = "FRESH"
	CreationCloned   CreationType = "CLONED"
	CreationEvolved  CreationType = "EVOLVED"
	CreationPromoted CreationType = "PROMOTED"
	CreationImported CreationType = "IMPORTED"
)

// Valid reports whether ct is a known creation type.
func (ct CreationType) Valid() bool {
	switch ct {
	case CreationFresh, CreationCloned, CreationEvolved, CreationPromoted, CreationImported:
		return true
	}
	return false
}

// GateDecision is the outcome of a role-gate evaluation.
type GateDecision string

const (
	DecisionAllow    GateDecision = "ALLOW"
	DecisionDeny     GateDecision = "DENY"
	DecisionEscalate GateDecision = "ESCALATE"
)

// ComplianceStatus classifies a trust ledger entry against its ceiling.
type ComplianceStatus string

const (
	// ComplianceCompliant means the proposed score was within the ceiling.
	ComplianceCompliant ComplianceStatus = "COMPLIANT"
	// ComplianceWarning means the proposal exceeded the ceiling and was clipped.
	ComplianceWarning ComplianceStatus = "WARNING"
	// ComplianceViolation means a score above the ceiling was recorded
	// without clipping. Clipping is always enforced, so a VIOLATION entry
	// signals a bypass attempt and is itself an audit finding.
	ComplianceViolation ComplianceStatus = "VIOLATION"
)

// CeilingSource identifies which limit won the min() resolution.
type CeilingSource string

const (
	CeilingRegulatory     CeilingSource = "regulatory"
	CeilingOrganizational CeilingSource = "organizational"
	CeilingAgent          CeilingSource = "agent"
	CeilingNone           CeilingSource = "none"
)

// Framework is a regulatory compliance framework with a fixed score ceiling.
type Framework string

const (
	FrameworkEUAIAct    Framework = "eu-ai-act"
	FrameworkFinancial  Framework = "financial"
	FrameworkHealthcare Framework = "healthcare"
	FrameworkGeneral    Framework = "general"
)

// PauseReason enumerates why an agent's breaker was opened.
type PauseReason string

const (
	PauseInvestigation   PauseReason = "investigation"
	PauseMaintenance     PauseReason = "maintenance"
	PauseConsumerRequest PauseReason = "consumer_request"
	PauseCircuitBreaker  PauseReason = "circuit_breaker"
	PauseCascadeHalt     PauseReason = "cascade_halt"
	PauseEmergencyStop   PauseReason = "emergency_stop"
	PauseOther           PauseReason = "other"
)

// Valid reports whether r is a known pause reason.
func (r PauseReason) Valid() bool {
	switch r {
	case PauseInvestigation, PauseMaintenance, PauseConsumerRequest,
		PauseCircuitBreaker, PauseCascadeHalt, PauseEmergencyStop, PauseOther:
		return true
	}
	return false
}

// AlertType categorizes a gaming detection.
type AlertType string

const (
	AlertRapidChange     AlertType = "rapid_change"
	AlertOscillation     AlertType = "oscillation"
	AlertBoundaryTesting AlertType = "boundary_testing"
	AlertCeilingBreach   AlertType = "ceiling_breach"
)

// AlertSeverity ranks a gaming alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// AlertStatus tracks the resolution lifecycle of a gaming alert.
type AlertStatus string

const (
	AlertActive        AlertStatus = "ACTIVE"
	AlertInvestigating AlertStatus = "INVESTIGATING"
	AlertResolved      AlertStatus = "RESOLVED"
	AlertFalsePositive AlertStatus = "FALSE_POSITIVE"
)

// VoteDecision is a single participant's vote on a proposal.
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
	VoteAbstain VoteDecision = "abstain"
)

// ConsensusOutcome is the terminal state of a proposal.
type ConsensusOutcome string

const (
	OutcomePending     ConsensusOutcome = "pending"
	OutcomeReached     ConsensusOutcome = "consensus_reached"
	OutcomeNoConsensus ConsensusOutcome = "no_consensus"
	OutcomeExpired     ConsensusOutcome = "expired"
)

// CapabilitySet is the declared capability surface of an agent, as
// reported by the out-of-scope Agent Directory.
type CapabilitySet struct {
	AgentID        string    `json:"agent_id"`
	Specialization string    `json:"specialization,omitempty"`
	Capabilities   []string  `json:"capabilities"`
	DeclaredAt     time.Time `json:"declared_at"`
}

// Has reports whether the set declares the named capability.
func (c CapabilitySet) Has(name string) bool {
	for _, cap := range c.Capabilities {
		if cap == name {
			return true
		}
	}
	return false
}
