// Package rolegate converts a role-escalation request into
// ALLOW / DENY / ESCALATE through three layers:
//
//	kernel  hard minimum-tier floor, never overridable
//	policy  named soft rules, CEL expressions over the request
//	basis   dual-control human override of a policy deny/escalate
//
// Every evaluation writes one immutable record carrying the full chain
// of sub-results, so any decision can be replayed exactly.
package rolegate

import (
	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// kernelFloor maps each role to the minimum tier required to even be
// considered. Below the floor the outcome is DENY regardless of any
// policy or override; this is the absolute safety floor, independent of
// configurable policy.
var kernelFloor = map[contracts.AgentRole]contracts.TrustTier{
	contracts.RoleListener:            contracts.TierT0,
	contracts.RoleResponder:           contracts.TierT0,
	contracts.RoleTaskExecutor:        contracts.TierT1,
	contracts.RoleWorkflowManager:     contracts.TierT2,
	contracts.RoleDomainExpert:        contracts.TierT3,
	contracts.RoleResourceController:  contracts.TierT4,
	contracts.RoleSystemAdministrator: contracts.TierT5,
	contracts.RoleTrustGovernor:       contracts.TierT5,
	contracts.RoleEcosystemController: contracts.TierT5,
}

// KernelAllows reports whether the tier clears the role's floor. Unknown
// roles fail closed.
func KernelAllows(role contracts.AgentRole, tier contracts.TrustTier) bool {
	floor, ok := kernelFloor[role]
	if !ok {
		return false
	}
	return tier.Index() >= floor.Index()
}

// MinimumTier returns the kernel floor for a role. Unknown roles report
// the highest tier.
func MinimumTier(role contracts.AgentRole) contracts.TrustTier {
	if floor, ok := kernelFloor[role]; ok {
		return floor
	}
	return contracts.TierT5
}
