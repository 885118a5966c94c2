package hierarchy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Scope parameter schemas. Unknown keys are allowed everywhere; the
// schemas pin down the types of the keys the engine itself reads.
var scopeSchemas = map[Scope]string{
	ScopeDeployment: `{
		"type": "object",
		"properties": {
			"region":               {"type": "string"},
			"environment":          {"type": "string", "enum": ["dev", "staging", "production"]},
			"trust_ceiling":        {"type": "integer", "minimum": 0, "maximum": 1000}
		}
	}`,
	ScopeOrganization: `{
		"type": "object",
		"properties": {
			"name":                  {"type": "string"},
			"trust_ceiling":         {"type": "integer", "minimum": 0, "maximum": 1000},
			"compliance_frameworks": {"type": "array", "items": {"type": "string"}}
		}
	}`,
	ScopeAgent: `{
		"type": "object",
		"properties": {
			"trust_ceiling":  {"type": "integer", "minimum": 0, "maximum": 1000},
			"specialization": {"type": "string"},
			"capabilities":   {"type": "array", "items": {"type": "string"}}
		}
	}`,
	ScopeOperation: `{
		"type": "object",
		"properties": {
			"task":     {"type": "string"},
			"resource": {"type": "string"}
		}
	}`,
}

var compiledSchemas = func() map[Scope]*jsonschema.Schema {
	out := make(map[Scope]*jsonschema.Schema, len(scopeSchemas))
	for scope, src := range scopeSchemas {
		sch, err := jsonschema.CompileString(string(scope)+".json", src)
		if err != nil {
			panic(fmt.Sprintf("hierarchy: bad %s schema: %v", scope, err))
		}
		out[scope] = sch
	}
	return out
}()

// validateParams checks params against the scope's schema. Params pass
// through a JSON round-trip first so Go-native ints validate the same way
// they will after persistence.
func validateParams(scope Scope, params Params) error {
	sch, ok := compiledSchemas[scope]
	if !ok {
		return fmt.Errorf("no schema for scope %s", scope)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal %s params: %w", scope, err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode %s params: %w", scope, err)
	}
	if err := sch.Validate(decoded); err != nil {
		return fmt.Errorf("%s params invalid: %w", scope, err)
	}
	return nil
}
