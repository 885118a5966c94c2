// Package directory declares the narrow inbound contracts the trust
// engine consumes from out-of-scope collaborators: the Agent Directory
// (identity and declared capabilities) and the Organization Directory
// (compliance frameworks). Static in-memory implementations back tests
// and single-node deployments.
package directory

import (
	"sync"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// AgentDirectory resolves an agent's declared capability surface.
type AgentDirectory interface {
	GetAgentCapabilities(agentID string) (contracts.CapabilitySet, error)
}

// OrgDirectory resolves the compliance frameworks an organization
// operates under.
type OrgDirectory interface {
	GetOrgComplianceFrameworks(orgID string) ([]contracts.Framework, error)
}

// Static is a mutex-guarded in-memory implementation of both contracts.
type Static struct {
	mu         sync.RWMutex
	agents     map[string]contracts.CapabilitySet
	frameworks map[string][]contracts.Framework
}

// NewStatic creates an empty directory.
func NewStatic() *Static {
	return &Static{
		agents:     make(map[string]contracts.CapabilitySet),
		frameworks: make(map[string][]contracts.Framework),
	}
}

// RegisterAgent declares an agent's capability set.
func (s *Static) RegisterAgent(set contracts.CapabilitySet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[set.AgentID] = set
}

// SetOrgFrameworks declares an organization's compliance frameworks.
func (s *Static) SetOrgFrameworks(orgID string, frameworks []contracts.Framework) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameworks[orgID] = frameworks
}

// GetAgentCapabilities implements AgentDirectory.
func (s *Static) GetAgentCapabilities(agentID string) (contracts.CapabilitySet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.agents[agentID]
	if !ok {
		return contracts.CapabilitySet{}, fault.New(fault.NotFound, "agent %s not in directory", agentID)
	}
	return set, nil
}

// GetOrgComplianceFrameworks implements OrgDirectory.
func (s *Static) GetOrgComplianceFrameworks(orgID string) ([]contracts.Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fws, ok := s.frameworks[orgID]
	if !ok {
		return nil, fault.New(fault.NotFound, "organization %s not in directory", orgID)
	}
	out := make([]contracts.Framework, len(fws))
	copy(out, fws)
	return out, nil
}
