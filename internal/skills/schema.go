package skills

import (
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaFor generates a JSON schema map for a Go struct type, used by
// skill authors to declare their input shape from a typed struct instead
// of hand-writing the schema literal (pack: hector, which uses
// invopop/jsonschema for the same "derive a tool schema from a Go type"
// concern).
func SchemaFor(v interface{}) map[string]interface{} {
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	schema := r.ReflectFromType(reflect.TypeOf(v))
	return schemaToMap(schema)
}

// schemaToMap round-trips the jsonschema.Schema through JSON so callers get
// a plain map[string]any compatible with providers.ToolDefinition.Parameters.
func schemaToMap(schema *jsonschema.Schema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	return out
}
