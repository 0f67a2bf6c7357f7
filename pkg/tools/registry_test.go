package tools

import (
	"context"
	"testing"
)

func TestRegistrySchemasCollisionOrder(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltinSimple("lookup", "builtin lookup", nil, func(ctx context.Context, args map[string]any) (string, error) {
		return "builtin", nil
	})
	r.ReplaceRemoteTools(RemoteServerConfig{ServerID: "srv1"}, []Descriptor{{Name: "lookup", Description: "remote lookup"}})

	origin, ok := r.Origin("lookup")
	if !ok {
		t.Fatal("expected lookup to resolve")
	}
	if origin != OriginBuiltin {
		t.Errorf("expected builtin to win collision, got %s", origin)
	}

	schemas := r.Schemas(nil)
	if len(schemas) != 1 {
		t.Fatalf("expected colliding names to render one schema, got %d", len(schemas))
	}
	if fn, _ := schemas[0]["function"].(map[string]any); fn["description"] != "builtin lookup" {
		t.Errorf("expected the builtin schema to win collision, got %+v", schemas[0])
	}
}

func TestRegistryClearUserScopedKeepsBuiltins(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltinSimple("echo", "echo", nil, echoBuiltin)
	r.ReplaceRemoteTools(RemoteServerConfig{ServerID: "srv1"}, []Descriptor{{Name: "remote_tool"}})
	r.RegisterWebhookTool(Descriptor{Name: "webhook_tool"}, WebhookConfig{ToolID: "wh1"})

	r.ClearUserScoped()

	if _, ok := r.Origin("echo"); !ok {
		t.Fatal("expected builtin to survive ClearUserScoped")
	}
	if _, ok := r.Origin("remote_tool"); ok {
		t.Error("expected remote tool to be cleared")
	}
	if _, ok := r.Origin("webhook_tool"); ok {
		t.Error("expected webhook tool to be cleared")
	}
}

func TestRegistrySchemasRespectsAllowlist(t *testing.T) {
	r := NewRegistry()
	r.RegisterBuiltinSimple("a", "tool a", map[string]any{"type": "object"}, echoBuiltin)
	r.RegisterBuiltinSimple("b", "tool b", map[string]any{"type": "object"}, echoBuiltin)

	schemas := r.Schemas([]string{"a"})
	if len(schemas) != 1 {
		t.Fatalf("expected 1 schema, got %d", len(schemas))
	}
	fn := schemas[0]["function"].(map[string]any)
	if fn["name"] != "a" {
		t.Errorf("expected tool a, got %v", fn["name"])
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nope", nil, CallerContext{})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestDispatchBuiltinSimple(t *testing.T) {
	r := NewRegistry()
	RegisterDefaultBuiltins(r)

	result, err := r.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"}, CallerContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.Text != "hi" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestDispatchSQLQueryRequiresDB(t *testing.T) {
	r := NewRegistry()
	RegisterDefaultBuiltins(r)

	result, err := r.Dispatch(context.Background(), "sql_query", map[string]any{"query": "SELECT 1"}, CallerContext{})
	if err != nil {
		t.Fatalf("expected tool-level failure, not dispatch error: %v", err)
	}
	if result.Success {
		t.Error("expected failure without a DB handle")
	}
}
