package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/gaming"
)

// GovernanceProfile is a deployment-specific tuning profile: detector
// thresholds, velocity cap, framework ceilings, and lifecycle windows.
type GovernanceProfile struct {
	Name              string            `yaml:"name" json:"name"`
	Code              string            `yaml:"code" json:"code"`
	VelocityCap       int               `yaml:"velocity_cap" json:"velocity_cap"`
	FrameworkCeilings map[string]int    `yaml:"framework_ceilings,omitempty" json:"framework_ceilings,omitempty"`
	Detector          gaming.Thresholds `yaml:"detector" json:"detector"`
	Lifecycle         LifecycleConfig   `yaml:"lifecycle" json:"lifecycle"`
	Consensus         ConsensusConfig   `yaml:"consensus" json:"consensus"`
}

// LifecycleConfig holds the hierarchy and breaker timing windows.
type LifecycleConfig struct {
	OrgGracePeriod   time.Duration `yaml:"org_grace_period" json:"org_grace_period"`
	OperationTTL     time.Duration `yaml:"operation_ttl" json:"operation_ttl"`
	OverrideValidity time.Duration `yaml:"override_validity" json:"override_validity"`
}

// ConsensusConfig holds voting defaults.
type ConsensusConfig struct {
	RequiredAgreement float64       `yaml:"required_agreement" json:"required_agreement"`
	VotingWindow      time.Duration `yaml:"voting_window" json:"voting_window"`
}

// DefaultProfile returns production defaults matching the hardcoded
// component defaults.
func DefaultProfile() *GovernanceProfile {
	return &GovernanceProfile{
		Name:        "default",
		Code:        "default",
		VelocityCap: 150,
		Detector:    gaming.DefaultThresholds(),
		Lifecycle: LifecycleConfig{
			OrgGracePeriod:   72 * time.Hour,
			OperationTTL:     15 * time.Minute,
			OverrideValidity: 24 * time.Hour,
		},
		Consensus: ConsensusConfig{
			RequiredAgreement: 0.6,
			VotingWindow:      time.Hour,
		},
	}
}

// LoadProfile loads a governance profile YAML by code. It searches the
// profiles directory for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*GovernanceProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}

	if profile.Code == "default" || profile.Code == "" {
		profile.Code = code
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", code, err)
	}

	return profile, nil
}

// LoadAllProfiles loads all profile_*.yaml files from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*GovernanceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*GovernanceProfile, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := LoadProfile(profilesDir, code)
		if err != nil {
			return nil, err
		}
		profiles[profile.Code] = profile
	}

	return profiles, nil
}

// CeilingOverrides returns the profile's framework ceilings keyed by
// framework type, for the trust ledger.
func (p *GovernanceProfile) CeilingOverrides() map[contracts.Framework]int {
	if len(p.FrameworkCeilings) == 0 {
		return nil
	}
	out := make(map[contracts.Framework]int, len(p.FrameworkCeilings))
	for fw, v := range p.FrameworkCeilings {
		out[contracts.Framework(fw)] = v
	}
	return out
}

// Validate rejects profiles that would disable core protections.
func (p *GovernanceProfile) Validate() error {
	if p.VelocityCap <= 0 {
		return fmt.Errorf("velocity_cap must be positive, got %d", p.VelocityCap)
	}
	for fw, ceiling := range p.FrameworkCeilings {
		if ceiling < 0 || ceiling > 1000 {
			return fmt.Errorf("framework %q ceiling %d outside [0,1000]", fw, ceiling)
		}
	}
	if p.Consensus.RequiredAgreement <= 0 || p.Consensus.RequiredAgreement > 1 {
		return fmt.Errorf("consensus required_agreement %v outside (0,1]", p.Consensus.RequiredAgreement)
	}
	if p.Lifecycle.OperationTTL <= 0 {
		return fmt.Errorf("operation_ttl must be positive")
	}
	return nil
}
