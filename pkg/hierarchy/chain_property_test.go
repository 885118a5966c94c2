//go:build property
// +build property

// Property-based tests for hash chain integrity.
package hierarchy_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/hierarchy"
)

// TestChainVerifiesCleanTree verifies that any untampered chain passes
// verification regardless of parameter content.
func TestChainVerifiesCleanTree(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("untampered chains always verify", prop.ForAll(
		func(region, orgName, capability string) bool {
			s := hierarchy.NewStore()
			depID, err := s.CreateDeployment("dep", hierarchy.Params{"region": region})
			if err != nil {
				return false
			}
			orgID, err := s.CreateOrUpdateOrg(depID, orgName+"-org", hierarchy.Params{"name": orgName})
			if err != nil {
				return false
			}
			agentID, err := s.FreezeAgentContext(orgID, "agent", hierarchy.Params{"capabilities": []string{capability}})
			if err != nil {
				return false
			}
			opID, err := s.OpenOperation(agentID, "op", contracts.RoleListener, time.Minute)
			if err != nil {
				return false
			}
			return s.VerifyChain(opID) == nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestTamperAlwaysDetected verifies that overwriting any ancestor's
// parameters breaks verification for every descendant.
func TestTamperAlwaysDetected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("tampering any level breaks descendants", prop.ForAll(
		func(level int, payload string) bool {
			s := hierarchy.NewStore()
			depID, _ := s.CreateDeployment("dep", hierarchy.Params{"region": "eu"})
			orgID, _ := s.CreateOrUpdateOrg(depID, "org", hierarchy.Params{"name": "org"})
			agentID, _ := s.FreezeAgentContext(orgID, "agent", hierarchy.Params{"capabilities": []string{"read"}})
			opID, err := s.OpenOperation(agentID, "op", contracts.RoleListener, time.Minute)
			if err != nil {
				return false
			}

			targets := []string{depID, orgID, agentID, opID}
			target := targets[level%len(targets)]
			if err := s.TamperParams(target, hierarchy.Params{"injected": payload}); err != nil {
				return false
			}
			return s.VerifyChain(opID) != nil
		},
		gen.IntRange(0, 3),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.TestingRun(t)
}
