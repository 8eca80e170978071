package identity

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed identity.schema.json
var identitySchemaDoc []byte

var compiledIdentitySchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(identitySchemaDoc))
	if err != nil {
		panic(fmt.Sprintf("identity: embedded schema is invalid JSON: %v", err))
	}
	const schemaRes = "agentcore://identity.schema.json"
	if err := compiler.AddResource(schemaRes, doc); err != nil {
		panic(fmt.Sprintf("identity: add schema resource: %v", err))
	}
	compiledIdentitySchema, err = compiler.Compile(schemaRes)
	if err != nil {
		panic(fmt.Sprintf("identity: compile schema: %v", err))
	}
}

// ValidateSchema checks raw YAML against the embedded identity JSON Schema,
// ahead of structural validation. YAML is decoded into a generic value via
// yaml.v3 (which natively produces map[string]interface{}-compatible trees)
// so the same document serves both the schema pass and the later typed
// unmarshal into rawIdentity.
func ValidateSchema(raw []byte) error {
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decode yaml for schema check: %w", err)
	}
	normalized := normalizeForSchema(generic)
	if err := compiledIdentitySchema.Validate(normalized); err != nil {
		return err
	}
	return nil
}

// normalizeForSchema converts the map[string]interface{}/map[interface{}]interface{}
// mix yaml.v3 can produce into the map[string]any/[]any shapes
// jsonschema/v5 requires.
func normalizeForSchema(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeForSchema(vv)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[fmt.Sprintf("%v", k)] = normalizeForSchema(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeForSchema(vv)
		}
		return out
	default:
		return val
	}
}
