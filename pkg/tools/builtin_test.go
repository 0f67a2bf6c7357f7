package tools

import "testing"

func TestMustParamSchemaReflectsRequiredFieldsAndDescriptions(t *testing.T) {
	schema := mustParamSchema[echoParams]()

	if schema["type"] != "object" {
		t.Fatalf("expected an object schema, got %+v", schema)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected properties map, got %T", schema["properties"])
	}
	textProp, ok := props["text"].(map[string]any)
	if !ok {
		t.Fatalf("expected a 'text' property, got %+v", props)
	}
	if textProp["description"] != "Text to echo back" {
		t.Errorf("expected description to be reflected, got %+v", textProp)
	}

	required, ok := schema["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "text" {
		t.Errorf("expected 'text' to be reflected as required, got %+v", schema["required"])
	}
}

func TestRegisterDefaultBuiltinsUsesGeneratedSchemas(t *testing.T) {
	r := NewRegistry()
	RegisterDefaultBuiltins(r)

	schemas := r.Schemas(nil)
	if len(schemas) != 2 {
		t.Fatalf("expected echo + sql_query schemas, got %d", len(schemas))
	}
}
