// Package tools implements the Tool Registry and the heterogeneous
// dispatch surface (built-in, remote-process, HTTP webhook) described in
// SPEC_FULL.md §4.1 and §4.7.
package tools

import (
	"context"
	"database/sql"
	"net/http"
)

// Origin identifies which backend a tool descriptor dispatches to.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginRemote  Origin = "remote"  // remote-process, keyed by server id
	OriginWebhook Origin = "webhook" // HTTP webhook, keyed by tool id
)

// Descriptor is the catalogue entry the LLM's function-calling schema is
// rendered from: stable name, human description, parameter schema, and the
// origin tag that dispatch uses to route a call (spec.md §3 "Tool
// Descriptor").
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-Schema "properties" + "required"
	Origin      Origin
	// ServerID (remote) or ToolID (webhook) identifies the backend record
	// this descriptor was loaded from. Empty for built-ins.
	BackendID string
}

// Schema renders the descriptor as the industry-standard function-calling
// object the LLM stream adapter attaches to a request (spec.md §6).
func (d Descriptor) Schema() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  d.Parameters,
		},
	}
}

// Result is the outcome of a tool invocation.
type Result struct {
	Success bool
	Text    string // display/context text, capped by the caller
	Error   string
}

// CallerContext carries the caller identity and request-scoped handles a
// context-aware built-in may need (SPEC_FULL.md §4.1a). DB is the handle a
// built-in like sql_query reads through (the chat handler passes the
// service's own database, not a per-tenant one); Request carries the
// inbound HTTP request for built-ins that need headers or the remote
// address. Both are nil outside of an HTTP-triggered turn (e.g. tests).
type CallerContext struct {
	UserID   string
	TenantID string
	DB       *sql.DB
	Request  *http.Request
}

// SimpleBuiltin is a built-in tool with signature (args) -> text.
type SimpleBuiltin func(ctx context.Context, args map[string]any) (string, error)

// ContextBuiltin is a built-in tool with signature (args, caller) -> text.
type ContextBuiltin func(ctx context.Context, args map[string]any, caller CallerContext) (string, error)
