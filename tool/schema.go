package tool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	schemavalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaFromStruct derives a JSON-schema parameter map from a Go struct using
// reflection. Field names follow json tags, descriptions come from the
// jsonschema_description tag.
func SchemaFromStruct(v any) map[string]any {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(v)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}

var compiledSchemas sync.Map // schema JSON -> *schemavalidate.Schema

// ValidateArguments checks decoded arguments against a JSON-schema map.
// Compiled schemas are cached; tool schemas never mutate after registration.
func ValidateArguments(args map[string]any, schema map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	var compiled *schemavalidate.Schema
	if cached, ok := compiledSchemas.Load(string(raw)); ok {
		compiled = cached.(*schemavalidate.Schema)
	} else {
		compiled, err = schemavalidate.CompileString("tool.schema.json", string(raw))
		if err != nil {
			return fmt.Errorf("compile schema: %w", err)
		}
		compiledSchemas.Store(string(raw), compiled)
	}

	// Round-trip through JSON so numeric types match what a decoder produces.
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
