// Package provenance records how each agent came into existence and what
// trust modifier that origin implies.
//
// The record is immutable once written and hash-chained through the
// agent's lineage; the modifier policy that feeds it is a separate,
// mutable table so policy can evolve without rewriting history.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/tiers"
)

// Record is an agent's immutable provenance entry.
type Record struct {
	ID                   string                 `json:"id"`
	AgentID              string                 `json:"agent_id"`
	CreationType         contracts.CreationType `json:"creation_type"`
	ParentAgentID        string                 `json:"parent_agent_id,omitempty"`
	Creator              string                 `json:"creator"`
	OriginContextIDs     []string               `json:"origin_context_ids,omitempty"`
	TrustModifier        int                    `json:"trust_modifier"`
	Generation           int                    `json:"generation"`
	Hash                 string                 `json:"hash"`
	ParentProvenanceHash string                 `json:"parent_provenance_hash,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
}

// PolicyEntry is one row of the mutable modifier policy table.
type PolicyEntry struct {
	CreationType contracts.CreationType `json:"creation_type"`
	Modifier     int                    `json:"modifier"`
	UpdatedBy    string                 `json:"updated_by"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// DefaultModifiers is the baseline policy applied to new records.
var DefaultModifiers = map[contracts.CreationType]int{
	contracts.CreationFresh:    0,
	contracts.CreationCloned:   -50,
	contracts.CreationEvolved:  100,
	contracts.CreationPromoted: 150,
	contracts.CreationImported: -100,
}

// inheritanceFactors scale a parent's trust when it passes down the
// lineage. Fresh and imported agents inherit nothing.
var inheritanceFactors = map[contracts.CreationType]float64{
	contracts.CreationCloned:   0.2,
	contracts.CreationEvolved:  0.3,
	contracts.CreationPromoted: 0.5,
	contracts.CreationFresh:    0,
	contracts.CreationImported: 0,
}

// generationDecayBase shrinks inherited trust per lineage generation.
const generationDecayBase = 0.9

// Ledger stores provenance records (append-only, one per agent) and the
// modifier policy table.
type Ledger struct {
	mu      sync.RWMutex
	byAgent map[string]*Record
	policy  map[contracts.CreationType]PolicyEntry
	clock   func() time.Time
}

// NewLedger creates a ledger seeded with the default modifier policy.
func NewLedger() *Ledger {
	policy := make(map[contracts.CreationType]PolicyEntry, len(DefaultModifiers))
	for ct, mod := range DefaultModifiers {
		policy[ct] = PolicyEntry{CreationType: ct, Modifier: mod, UpdatedBy: "system"}
	}
	return &Ledger{
		byAgent: make(map[string]*Record),
		policy:  policy,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// RecordProvenance writes the one-and-only provenance record for an
// agent. The current policy modifier for the creation type is captured
// numerically into the record; later policy changes never touch it.
func (l *Ledger) RecordProvenance(agentID string, creationType contracts.CreationType, parentAgentID, creator string, originContextIDs []string) (*Record, error) {
	if !creationType.Valid() {
		return nil, fmt.Errorf("unknown creation type %q", creationType)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.byAgent[agentID]; ok {
		return nil, fault.New(fault.Conflict, "agent %s already has a provenance record", agentID)
	}

	var parentHash string
	generation := 0
	if parentAgentID != "" {
		parent, ok := l.byAgent[parentAgentID]
		if !ok {
			return nil, fault.New(fault.NotFound, "parent agent %s has no provenance record", parentAgentID)
		}
		parentHash = parent.Hash
		generation = parent.Generation + 1
	}

	now := l.clock()
	rec := &Record{
		ID:                   uuid.New().String(),
		AgentID:              agentID,
		CreationType:         creationType,
		ParentAgentID:        parentAgentID,
		Creator:              creator,
		OriginContextIDs:     originContextIDs,
		TrustModifier:        l.policy[creationType].Modifier,
		Generation:           generation,
		ParentProvenanceHash: parentHash,
		CreatedAt:            now,
	}
	rec.Hash = hashRecord(rec)
	l.byAgent[agentID] = rec

	cp := *rec
	return &cp, nil
}

func hashRecord(r *Record) string {
	h := sha256.New()
	h.Write([]byte(r.AgentID))
	h.Write([]byte(r.CreationType))
	h.Write([]byte(r.Creator))
	h.Write([]byte(r.CreatedAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(r.ParentProvenanceHash))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// Get returns the agent's provenance record.
func (l *Ledger) Get(agentID string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.byAgent[agentID]
	if !ok {
		return nil, fault.New(fault.NotFound, "agent %s has no provenance record", agentID)
	}
	cp := *rec
	return &cp, nil
}

// Lineage walks parent links from the agent up to its root ancestor.
func (l *Ledger) Lineage(agentID string) ([]*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var chain []*Record
	cur, ok := l.byAgent[agentID]
	if !ok {
		return nil, fault.New(fault.NotFound, "agent %s has no provenance record", agentID)
	}
	for cur != nil {
		cp := *cur
		chain = append(chain, &cp)
		if cur.ParentAgentID == "" {
			break
		}
		parent, ok := l.byAgent[cur.ParentAgentID]
		if !ok {
			return nil, fault.New(fault.NotFound, "lineage broken: parent %s missing", cur.ParentAgentID)
		}
		cur = parent
	}
	return chain, nil
}

// VerifyLineage recomputes every hash along the agent's lineage and
// checks each child's parent link.
func (l *Ledger) VerifyLineage(agentID string) error {
	chain, err := l.Lineage(agentID)
	if err != nil {
		return err
	}
	for i, rec := range chain {
		if hashRecord(rec) != rec.Hash {
			return fmt.Errorf("provenance hash mismatch for agent %s", rec.AgentID)
		}
		if i+1 < len(chain) && rec.ParentProvenanceHash != chain[i+1].Hash {
			return fmt.Errorf("provenance chain broken between %s and %s", rec.AgentID, chain[i+1].AgentID)
		}
	}
	return nil
}

// UpdateModifierPolicy changes the baseline modifier for a creation type.
// Existing records keep their captured values.
func (l *Ledger) UpdateModifierPolicy(creationType contracts.CreationType, modifier int, author string) error {
	if !creationType.Valid() {
		return fmt.Errorf("unknown creation type %q", creationType)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.policy[creationType] = PolicyEntry{
		CreationType: creationType,
		Modifier:     modifier,
		UpdatedBy:    author,
		UpdatedAt:    l.clock(),
	}
	return nil
}

// Modifier returns the current policy modifier for a creation type.
func (l *Ledger) Modifier(creationType contracts.CreationType) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy[creationType].Modifier
}

// InheritedTrust computes the advisory initial trust an agent inherits
// from its parent. Pure function:
//
//	inherited = round(parentScore * factor(creationType) * 0.9^generation)
//
// Rounding is half-up. The result is an initial proposal only; it still
// flows through the normal ceiling-clipping path.
func InheritedTrust(parentScore, generation int, creationType contracts.CreationType) int {
	if parentScore <= 0 || generation < 0 {
		return 0
	}
	factor := inheritanceFactors[creationType]
	if factor == 0 {
		return 0
	}
	decay := math.Pow(generationDecayBase, float64(generation))
	return int(math.Round(float64(parentScore) * factor * decay))
}

// ApplyModifier adds the current policy modifier for the creation type to
// a base score, clamped to the trust scale.
func (l *Ledger) ApplyModifier(baseScore int, creationType contracts.CreationType) int {
	score := baseScore + l.Modifier(creationType)
	if score < 0 {
		return 0
	}
	if score > tiers.MaxScore {
		return tiers.MaxScore
	}
	return score
}

// Stats counts records per creation type.
func (l *Ledger) Stats() map[contracts.CreationType]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[contracts.CreationType]int)
	for _, rec := range l.byAgent {
		out[rec.CreationType]++
	}
	return out
}
