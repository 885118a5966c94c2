// Package hierarchy implements the four-scope hierarchical context store:
// deployment, organization, agent, operation. Scopes become more volatile
// top-down and more immutable bottom-up in lifecycle terms:
//
//	deployment   frozen at creation
//	organization mutable until its lock timestamp (or grace deadline)
//	agent        frozen the instant it is created
//	operation    ephemeral, expires after a TTL
//
// Each node stores a content hash over its own canonicalized parameters
// plus its parent's hash, forming a chain from deployment down to
// operation. Tampering with any ancestor invalidates every hash below it.
package hierarchy

import (
	"time"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// Scope identifies the nesting level of a context node.
type Scope string

const (
	ScopeDeployment   Scope = "deployment"
	ScopeOrganization Scope = "organization"
	ScopeAgent        Scope = "agent"
	ScopeOperation    Scope = "operation"
)

// Params is the scope-specific parameter set of a node. Well-known keys:
// "trust_ceiling" (number), "compliance_frameworks" (list of strings),
// "capabilities" (list of strings).
type Params map[string]any

// Node is a single context-tree entry. Once its scope's immutability
// boundary passes, the stored value never changes; updates before the
// boundary replace Params and recompute Hash.
type Node struct {
	ID         string    `json:"id"`
	Scope      Scope     `json:"scope"`
	Key        string    `json:"key"`
	ParentID   string    `json:"parent_id,omitempty"`
	Params     Params    `json:"params"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parent_hash"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Organization scope only.
	GraceDeadline time.Time  `json:"grace_deadline,omitempty"`
	LockedAt      *time.Time `json:"locked_at,omitempty"`

	// Operation scope only.
	RequestedRole contracts.AgentRole `json:"requested_role,omitempty"`
	ExpiresAt     time.Time           `json:"expires_at,omitempty"`
	ClosedAt      *time.Time          `json:"closed_at,omitempty"`
}

// clone returns a detached copy so callers can never mutate stored state.
func (n *Node) clone() *Node {
	cp := *n
	cp.Params = make(Params, len(n.Params))
	for k, v := range n.Params {
		cp.Params[k] = v
	}
	if n.LockedAt != nil {
		t := *n.LockedAt
		cp.LockedAt = &t
	}
	if n.ClosedAt != nil {
		t := *n.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}

// Locked reports whether the organization node is past its immutability
// boundary at the given instant.
func (n *Node) Locked(now time.Time) bool {
	if n.Scope != ScopeOrganization {
		return false
	}
	if n.LockedAt != nil && !now.Before(*n.LockedAt) {
		return true
	}
	return !n.GraceDeadline.IsZero() && now.After(n.GraceDeadline)
}

// Expired reports whether an operation node's TTL has passed without the
// operation being closed.
func (n *Node) Expired(now time.Time) bool {
	return n.Scope == ScopeOperation && n.ClosedAt == nil && now.After(n.ExpiresAt)
}
