package rolegate

import (
	"fmt"
	"os"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/google/cel-go/cel"
	"gopkg.in/yaml.v3"

	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// Policy is one named soft rule. When its CEL condition evaluates true
// against the request, the policy applies and contributes its outcome.
type Policy struct {
	Name string `yaml:"name" json:"name"`
	// When is a CEL boolean over: agent (string), role (string),
	// tier (string), score (int), context (map).
	When    string                 `yaml:"when" json:"when"`
	Outcome contracts.GateDecision `yaml:"outcome" json:"outcome"`
}

// Bundle is a versioned set of policies. Versions are semver so bundle
// upgrades can be ordered and recorded on each evaluation.
type Bundle struct {
	Version  string   `yaml:"version" json:"version"`
	Policies []Policy `yaml:"policies" json:"policies"`
}

// LoadBundleFile reads a policy bundle from YAML.
func LoadBundleFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy bundle: %w", err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse policy bundle: %w", err)
	}
	return &b, nil
}

// Validate checks the version is semver and outcomes are well-formed.
func (b *Bundle) Validate() error {
	if _, err := semver.NewVersion(b.Version); err != nil {
		return fmt.Errorf("policy bundle version %q: %w", b.Version, err)
	}
	for _, p := range b.Policies {
		switch p.Outcome {
		case contracts.DecisionAllow, contracts.DecisionDeny, contracts.DecisionEscalate:
		default:
			return fmt.Errorf("policy %q has unknown outcome %q", p.Name, p.Outcome)
		}
		if p.When == "" {
			return fmt.Errorf("policy %q has empty condition", p.Name)
		}
	}
	return nil
}

// PolicyEvaluator compiles and caches CEL programs for the policy layer.
type PolicyEvaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewPolicyEvaluator creates the CEL environment for gate policies.
func NewPolicyEvaluator() (*PolicyEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("agent", cel.StringType),
		cel.Variable("role", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("score", cel.IntType),
		cel.Variable("context", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &PolicyEvaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// AppliedPolicy is a policy that matched a request, with its outcome.
type AppliedPolicy struct {
	Name    string                 `json:"name"`
	Outcome contracts.GateDecision `json:"outcome"`
}

// EvaluateLayer runs every bundle policy against the request input and
// aggregates: any deny wins, otherwise any escalate, otherwise allow.
// A policy whose condition errors counts as a deny (fail closed).
func (e *PolicyEvaluator) EvaluateLayer(bundle *Bundle, input map[string]any) (contracts.GateDecision, []AppliedPolicy, error) {
	var applied []AppliedPolicy
	for _, p := range bundle.Policies {
		matched, err := e.evalBool(p.When, input)
		if err != nil {
			applied = append(applied, AppliedPolicy{Name: p.Name, Outcome: contracts.DecisionDeny})
			continue
		}
		if matched {
			applied = append(applied, AppliedPolicy{Name: p.Name, Outcome: p.Outcome})
		}
	}

	aggregate := contracts.DecisionAllow
	for _, a := range applied {
		if a.Outcome == contracts.DecisionDeny {
			return contracts.DecisionDeny, applied, nil
		}
		if a.Outcome == contracts.DecisionEscalate {
			aggregate = contracts.DecisionEscalate
		}
	}
	return aggregate, applied, nil
}

func (e *PolicyEvaluator) evalBool(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.cache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile %q: %w", expr, issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program %q: %w", expr, err)
			}
			e.cache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy condition %q did not yield a boolean", expr)
	}
	return result, nil
}
