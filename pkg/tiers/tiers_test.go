package tiers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

func TestTierForBounds(t *testing.T) {
	bt := Default()

	cases := []struct {
		score int
		want  contracts.TrustTier
	}{
		{0, contracts.TierT0},
		{99, contracts.TierT0},
		{100, contracts.TierT1},
		{299, contracts.TierT1},
		{300, contracts.TierT2},
		{500, contracts.TierT3},
		{699, contracts.TierT3},
		{700, contracts.TierT4},
		{899, contracts.TierT4},
		{900, contracts.TierT5},
		{1000, contracts.TierT5},
	}
	for _, tc := range cases {
		got, err := bt.TierFor(tc.score)
		if err != nil {
			t.Fatalf("TierFor(%d): %v", tc.score, err)
		}
		if got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestTierForOutOfRange(t *testing.T) {
	bt := Default()
	if _, err := bt.TierFor(-1); err == nil {
		t.Fatal("expected error for negative score")
	}
	if _, err := bt.TierFor(1001); err == nil {
		t.Fatal("expected error for score above the scale")
	}
}

func TestValidateRejectsGaps(t *testing.T) {
	bt := &BoundaryTable{
		Bands: []Band{
			{Tier: contracts.TierT0, Min: 0, Max: 99},
			{Tier: contracts.TierT1, Min: 101, Max: 1000}, // gap at 100
		},
	}
	if err := bt.Validate(); err == nil {
		t.Fatal("expected validation error for non-contiguous bands")
	}
}

func TestNextAndRequirement(t *testing.T) {
	bt := Default()

	if next := bt.Next(contracts.TierT0); next != contracts.TierT1 {
		t.Fatalf("Next(T0) = %s", next)
	}
	if next := bt.Next(contracts.TierT5); next != "" {
		t.Fatalf("Next(T5) = %s, want empty", next)
	}

	req, ok := bt.RequirementFor(contracts.TierT1)
	if !ok {
		t.Fatal("expected requirement for T1")
	}
	if req.MinScore != 100 || req.MinTaskCount != 10 {
		t.Fatalf("unexpected T1 requirement: %+v", req)
	}
}

func TestBoundaries(t *testing.T) {
	bt := Default()
	got := bt.Boundaries()
	want := []int{100, 300, 500, 700, 900}
	if len(got) != len(want) {
		t.Fatalf("Boundaries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Boundaries()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiers.yaml")
	yaml := `bands:
  - tier: T0
    min: 0
    max: 499
    label: Low
  - tier: T1
    min: 500
    max: 1000
    label: High
requirements:
  - tier: T1
    min_score: 500
    min_task_count: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	bt, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	tier, err := bt.TierFor(500)
	if err != nil {
		t.Fatal(err)
	}
	if tier != contracts.TierT1 {
		t.Fatalf("TierFor(500) = %s, want T1", tier)
	}
}
