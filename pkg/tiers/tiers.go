// Package tiers maps numeric trust scores (0-1000) to discrete trust
// tiers (T0-T5) and holds the per-level progression requirement table.
//
// Boundaries are configuration, not code: deployments tune them through a
// BoundaryTable (optionally loaded from YAML) without touching the engine.
package tiers

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// MaxScore is the top of the trust scale.
const MaxScore = 1000

// Band is one contiguous score range mapped to a tier.
type Band struct {
	Tier  contracts.TrustTier `yaml:"tier"`
	Min   int                 `yaml:"min"`
	Max   int                 `yaml:"max"`
	Label string              `yaml:"label"`
}

// Requirement gates progression into a tier.
type Requirement struct {
	Tier         contracts.TrustTier `yaml:"tier"`
	MinScore     int                 `yaml:"min_score"`
	MinTaskCount int                 `yaml:"min_task_count"`
}

// BoundaryTable resolves scores to tiers and tiers to progression
// requirements.
type BoundaryTable struct {
	Bands        []Band        `yaml:"bands"`
	Requirements []Requirement `yaml:"requirements"`
}

// Default returns the standard six-band table.
func Default() *BoundaryTable {
	return &BoundaryTable{
		Bands: []Band{
			{Tier: contracts.TierT0, Min: 0, Max: 99, Label: "Sandbox"},
			{Tier: contracts.TierT1, Min: 100, Max: 299, Label: "Probation"},
			{Tier: contracts.TierT2, Min: 300, Max: 499, Label: "Limited"},
			{Tier: contracts.TierT3, Min: 500, Max: 699, Label: "Standard"},
			{Tier: contracts.TierT4, Min: 700, Max: 899, Label: "Trusted"},
			{Tier: contracts.TierT5, Min: 900, Max: 1000, Label: "Sovereign"},
		},
		Requirements: []Requirement{
			{Tier: contracts.TierT1, MinScore: 100, MinTaskCount: 10},
			{Tier: contracts.TierT2, MinScore: 300, MinTaskCount: 50},
			{Tier: contracts.TierT3, MinScore: 500, MinTaskCount: 200},
			{Tier: contracts.TierT4, MinScore: 700, MinTaskCount: 1000},
			{Tier: contracts.TierT5, MinScore: 900, MinTaskCount: 5000},
		},
	}
}

// LoadFile reads a BoundaryTable from a YAML profile.
func LoadFile(path string) (*BoundaryTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier profile: %w", err)
	}
	var bt BoundaryTable
	if err := yaml.Unmarshal(data, &bt); err != nil {
		return nil, fmt.Errorf("parse tier profile: %w", err)
	}
	if err := bt.Validate(); err != nil {
		return nil, err
	}
	return &bt, nil
}

// Validate checks the table covers 0..MaxScore contiguously.
func (bt *BoundaryTable) Validate() error {
	if len(bt.Bands) == 0 {
		return fmt.Errorf("tier table has no bands")
	}
	sorted := make([]Band, len(bt.Bands))
	copy(sorted, bt.Bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	if sorted[0].Min != 0 {
		return fmt.Errorf("tier table must start at 0, starts at %d", sorted[0].Min)
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Min != sorted[i-1].Max+1 {
			return fmt.Errorf("gap between tier %s (max %d) and %s (min %d)",
				sorted[i-1].Tier, sorted[i-1].Max, sorted[i].Tier, sorted[i].Min)
		}
	}
	if last := sorted[len(sorted)-1]; last.Max != MaxScore {
		return fmt.Errorf("tier table must end at %d, ends at %d", MaxScore, last.Max)
	}
	return nil
}

// TierFor returns the tier containing score.
func (bt *BoundaryTable) TierFor(score int) (contracts.TrustTier, error) {
	if score < 0 || score > MaxScore {
		return "", fmt.Errorf("score %d out of range 0-%d", score, MaxScore)
	}
	for _, b := range bt.Bands {
		if score >= b.Min && score <= b.Max {
			return b.Tier, nil
		}
	}
	return "", fmt.Errorf("no band for score %d", score)
}

// Label returns the human-readable name for a tier, or the tier string
// itself if the table carries no label.
func (bt *BoundaryTable) Label(tier contracts.TrustTier) string {
	for _, b := range bt.Bands {
		if b.Tier == tier {
			return b.Label
		}
	}
	return string(tier)
}

// Band returns the score range for a tier.
func (bt *BoundaryTable) Band(tier contracts.TrustTier) (Band, bool) {
	for _, b := range bt.Bands {
		if b.Tier == tier {
			return b, true
		}
	}
	return Band{}, false
}

// Next returns the tier above the given one, or "" at the top.
func (bt *BoundaryTable) Next(tier contracts.TrustTier) contracts.TrustTier {
	idx := tier.Index()
	if idx < 0 || idx+1 >= len(contracts.AllTiers) {
		return ""
	}
	return contracts.AllTiers[idx+1]
}

// RequirementFor returns the progression requirement for entering tier.
func (bt *BoundaryTable) RequirementFor(tier contracts.TrustTier) (Requirement, bool) {
	for _, r := range bt.Requirements {
		if r.Tier == tier {
			return r, true
		}
	}
	return Requirement{}, false
}

// Boundaries returns the lower bound of every band above the first,
// ascending. These are the tier-crossing thresholds the gaming detector
// watches for oscillation.
func (bt *BoundaryTable) Boundaries() []int {
	sorted := make([]Band, len(bt.Bands))
	copy(sorted, bt.Bands)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })
	out := make([]int, 0, len(sorted)-1)
	for _, b := range sorted[1:] {
		out = append(out, b.Min)
	}
	return out
}
