package skills

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles and caches a skill's declared JSON schema, validating
// tool-call arguments against it before the handler runs (spec §4.1 step 4
// "validate args against the declared schema"). Grounded on goa-ai's use of
// santhosh-tekuri/jsonschema/v6 for the same structural-validation concern.
type Validator struct {
	compiled map[string]*jsonschema.Schema
}

// NewValidator builds a Validator and eagerly compiles every executable
// skill's schema so a malformed schema is caught at boot, not mid-turn.
func NewValidator(reg *Registry) (*Validator, error) {
	v := &Validator{compiled: make(map[string]*jsonschema.Schema)}
	for _, s := range reg.List() {
		if s.Kind != KindExecutable || s.Schema == nil {
			continue
		}
		sch, err := compileSchema(s.Name, s.Schema)
		if err != nil {
			return nil, fmt.Errorf("compile schema for %q: %w", s.Name, err)
		}
		v.compiled[s.Name] = sch
	}
	return v, nil
}

func compileSchema(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	url := "mem://skills/" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Validate checks input against the skill's declared schema. A skill with
// no declared schema accepts any input unconditionally.
func (v *Validator) Validate(skillName string, input json.RawMessage) error {
	sch, ok := v.compiled[skillName]
	if !ok {
		return nil
	}
	var doc interface{}
	if len(input) == 0 {
		doc = map[string]interface{}{}
	} else if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("invalid JSON input: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
