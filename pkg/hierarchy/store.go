package hierarchy

import (
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
)

// DefaultOrgGracePeriod is how long after creation an organization stays
// mutable when no explicit lock is set.
const DefaultOrgGracePeriod = 72 * time.Hour

// DefaultOperationTTL bounds operations whose caller passes no TTL.
const DefaultOperationTTL = 15 * time.Minute

// Store is the in-memory hierarchical context store. All access is
// serialized by a single mutex; nodes handed out are copies, never
// pointers into the store.
type Store struct {
	mu          sync.RWMutex
	nodes       map[string]*Node // by id
	byScopeKey  map[string]string
	clock       func() time.Time
	gracePeriod time.Duration
	opTTL       time.Duration
}

// NewStore creates an empty context store.
func NewStore() *Store {
	return &Store{
		nodes:       make(map[string]*Node),
		byScopeKey:  make(map[string]string),
		clock:       time.Now,
		gracePeriod: DefaultOrgGracePeriod,
		opTTL:       DefaultOperationTTL,
	}
}

// WithClock overrides the clock for deterministic testing.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// WithGracePeriod overrides the organization grace period.
func (s *Store) WithGracePeriod(d time.Duration) *Store {
	s.gracePeriod = d
	return s
}

// WithOperationTTL overrides the TTL applied when OpenOperation is
// called without one.
func (s *Store) WithOperationTTL(d time.Duration) *Store {
	s.opTTL = d
	return s
}

func scopeKey(scope Scope, parentID, key string) string {
	return string(scope) + "/" + parentID + "/" + key
}

// CreateDeployment creates the root scope. Repeat calls with the same
// external key are idempotent and return the existing id; deployments are
// never mutable after creation.
func (s *Store) CreateDeployment(externalKey string, params Params) (string, error) {
	if err := validateParams(ScopeDeployment, params); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sk := scopeKey(ScopeDeployment, "", externalKey)
	if id, ok := s.byScopeKey[sk]; ok {
		return id, nil
	}

	hash, err := hashNode(params, genesisHash)
	if err != nil {
		return "", err
	}
	now := s.clock()
	node := &Node{
		ID:         uuid.New().String(),
		Scope:      ScopeDeployment,
		Key:        externalKey,
		Params:     params,
		Hash:       hash,
		ParentHash: genesisHash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nodes[node.ID] = node
	s.byScopeKey[sk] = node.ID
	return node.ID, nil
}

// CreateOrUpdateOrg creates an organization under a deployment, or
// updates its parameters while it is still inside its grace period,
// unlocked, and without frozen agent contexts. The lock check happens
// under the same mutex that applies the update, so no update can slip
// in after LockOrg commits.
func (s *Store) CreateOrUpdateOrg(deploymentID, orgKey string, params Params) (string, error) {
	if err := validateParams(ScopeOrganization, params); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[deploymentID]
	if !ok || parent.Scope != ScopeDeployment {
		return "", fault.New(fault.NotFound, "deployment %s not found", deploymentID)
	}

	now := s.clock()
	sk := scopeKey(ScopeOrganization, deploymentID, orgKey)
	if id, ok := s.byScopeKey[sk]; ok {
		node := s.nodes[id]
		if node.Locked(now) {
			return "", fault.New(fault.Locked, "organization %s is locked", id)
		}
		// Frozen agent contexts capture the org hash at freeze time;
		// changing the org afterwards would break their chains.
		for _, child := range s.nodes {
			if child.Scope == ScopeAgent && child.ParentID == id {
				return "", fault.New(fault.Conflict, "organization %s has frozen agent contexts", id)
			}
		}
		hash, err := hashNode(params, parent.Hash)
		if err != nil {
			return "", err
		}
		node.Params = params
		node.Hash = hash
		node.UpdatedAt = now
		return id, nil
	}

	hash, err := hashNode(params, parent.Hash)
	if err != nil {
		return "", err
	}
	node := &Node{
		ID:            uuid.New().String(),
		Scope:         ScopeOrganization,
		Key:           orgKey,
		ParentID:      deploymentID,
		Params:        params,
		Hash:          hash,
		ParentHash:    parent.Hash,
		CreatedAt:     now,
		UpdatedAt:     now,
		GraceDeadline: now.Add(s.gracePeriod),
	}
	s.nodes[node.ID] = node
	s.byScopeKey[sk] = node.ID
	return node.ID, nil
}

// LockOrg sets the organization's lock timestamp. Idempotent: locking a
// locked organization keeps the original timestamp.
func (s *Store) LockOrg(orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[orgID]
	if !ok || node.Scope != ScopeOrganization {
		return fault.New(fault.NotFound, "organization %s not found", orgID)
	}
	if node.LockedAt == nil {
		now := s.clock()
		node.LockedAt = &now
	}
	return nil
}

// FreezeAgentContext snapshots an agent's context under an organization.
// The snapshot is permanently immutable: a repeat call with identical
// parameters returns the existing id, a repeat call with different
// parameters fails with Frozen.
func (s *Store) FreezeAgentContext(orgID, agentKey string, params Params) (string, error) {
	if err := validateParams(ScopeAgent, params); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[orgID]
	if !ok || parent.Scope != ScopeOrganization {
		return "", fault.New(fault.NotFound, "organization %s not found or not committed", orgID)
	}

	sk := scopeKey(ScopeAgent, orgID, agentKey)
	if id, ok := s.byScopeKey[sk]; ok {
		existing := s.nodes[id]
		if reflect.DeepEqual(existing.Params, params) {
			return id, nil
		}
		return "", fault.New(fault.Frozen, "agent context for %s already frozen", agentKey)
	}

	hash, err := hashNode(params, parent.Hash)
	if err != nil {
		return "", err
	}
	now := s.clock()
	node := &Node{
		ID:         uuid.New().String(),
		Scope:      ScopeAgent,
		Key:        agentKey,
		ParentID:   orgID,
		Params:     params,
		Hash:       hash,
		ParentHash: parent.Hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nodes[node.ID] = node
	s.byScopeKey[sk] = node.ID
	return node.ID, nil
}

// OpenOperation creates an ephemeral operation node under an agent
// context. Operations expire after ttl (the store default if zero);
// expired operations stop contributing to ceiling resolution but stay in
// the audit chain.
func (s *Store) OpenOperation(agentContextID, opKey string, requestedRole contracts.AgentRole, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[agentContextID]
	if !ok || parent.Scope != ScopeAgent {
		return "", fault.New(fault.NotFound, "agent context %s not found", agentContextID)
	}
	if ttl <= 0 {
		ttl = s.opTTL
	}

	params := Params{"task": opKey}
	hash, err := hashNode(params, parent.Hash)
	if err != nil {
		return "", err
	}
	now := s.clock()
	node := &Node{
		ID:            uuid.New().String(),
		Scope:         ScopeOperation,
		Key:           opKey,
		ParentID:      agentContextID,
		Params:        params,
		Hash:          hash,
		ParentHash:    parent.Hash,
		CreatedAt:     now,
		UpdatedAt:     now,
		RequestedRole: requestedRole,
		ExpiresAt:     now.Add(ttl),
	}
	s.nodes[node.ID] = node
	return node.ID, nil
}

// CloseOperation marks an operation complete. Closing an already closed
// or expired operation is a Conflict.
func (s *Store) CloseOperation(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[operationID]
	if !ok || node.Scope != ScopeOperation {
		return fault.New(fault.NotFound, "operation %s not found", operationID)
	}
	if node.ClosedAt != nil {
		return fault.New(fault.Conflict, "operation %s already closed", operationID)
	}
	now := s.clock()
	if now.After(node.ExpiresAt) {
		return fault.New(fault.Expired, "operation %s expired at %s", operationID, node.ExpiresAt.Format(time.RFC3339))
	}
	node.ClosedAt = &now
	return nil
}

// Get returns a copy of the node, or NotFound.
func (s *Store) Get(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "context %s not found", id)
	}
	return node.clone(), nil
}

// Lookup resolves a node by scope, parent, and key.
func (s *Store) Lookup(scope Scope, parentID, key string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byScopeKey[scopeKey(scope, parentID, key)]
	if !ok {
		return nil, fault.New(fault.NotFound, "%s %q not found under %q", scope, key, parentID)
	}
	return s.nodes[id].clone(), nil
}

// Chain returns the path from the deployment root down to the given node.
func (s *Store) Chain(id string) ([]*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainLocked(id)
}

func (s *Store) chainLocked(id string) ([]*Node, error) {
	var path []*Node
	cur, ok := s.nodes[id]
	if !ok {
		return nil, fault.New(fault.NotFound, "context %s not found", id)
	}
	for cur != nil {
		path = append([]*Node{cur.clone()}, path...)
		if cur.ParentID == "" {
			break
		}
		parent, ok := s.nodes[cur.ParentID]
		if !ok {
			return nil, fault.New(fault.NotFound, "parent context %s not found", cur.ParentID)
		}
		cur = parent
	}
	return path, nil
}

// TamperedNodeError reports the first node whose stored hash does not
// match its recomputed value.
type TamperedNodeError struct {
	NodeID string
	Scope  Scope
}

func (e *TamperedNodeError) Error() string {
	return "hash chain broken at " + string(e.Scope) + " node " + e.NodeID
}

// VerifyChain walks the chain from the deployment root down to the given
// node, recomputing every hash. It fails fast on the first mismatch and
// identifies exactly which node was tampered with.
func (s *Store) VerifyChain(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.chainLocked(id)
	if err != nil {
		return err
	}
	parentHash := genesisHash
	for _, node := range path {
		if node.ParentHash != parentHash {
			return &TamperedNodeError{NodeID: node.ID, Scope: node.Scope}
		}
		computed, err := hashNode(node.Params, parentHash)
		if err != nil {
			return err
		}
		if computed != node.Hash {
			return &TamperedNodeError{NodeID: node.ID, Scope: node.Scope}
		}
		parentHash = node.Hash
	}
	return nil
}

// TamperParams overwrites a node's stored parameters WITHOUT recomputing
// its hash. Test hook for chain verification; never reachable from the
// engine surface.
func (s *Store) TamperParams(id string, params Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fault.New(fault.NotFound, "context %s not found", id)
	}
	node.Params = params
	return nil
}

// ExpireOperations sweeps operation nodes past their TTL and returns the
// ids swept. Expired operations remain stored for the audit chain.
func (s *Store) ExpireOperations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var expired []string
	for id, node := range s.nodes {
		if node.Expired(now) {
			expired = append(expired, id)
		}
	}
	return expired
}

// Stats summarizes the stored tree.
type Stats struct {
	Deployments      int `json:"deployments"`
	Organizations    int `json:"organizations"`
	Agents           int `json:"agents"`
	ActiveOperations int `json:"active_operations"`
}

// Stats counts nodes per scope; operations count only while open and
// unexpired.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock()
	var st Stats
	for _, node := range s.nodes {
		switch node.Scope {
		case ScopeDeployment:
			st.Deployments++
		case ScopeOrganization:
			st.Organizations++
		case ScopeAgent:
			st.Agents++
		case ScopeOperation:
			if node.ClosedAt == nil && !now.After(node.ExpiresAt) {
				st.ActiveOperations++
			}
		}
	}
	return st
}
