package tools

import (
	"fmt"
	"sort"
	"sync"
)

// RegistryError mirrors the teacher's ToolRegistryError
// (pkg/tools/registry.go): a small structured error carrying action,
// message, and an optional wrapped cause.
type RegistryError struct {
	Action  string
	Message string
	Err     error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tools registry: %s: %s: %v", e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("tools registry: %s: %s", e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// builtinImpl holds whichever of the two built-in signatures was
// registered; exactly one is non-nil.
type builtinImpl struct {
	simple  SimpleBuiltin
	withCtx ContextBuiltin
}

// entry is the registry's internal catalogue record: a descriptor plus
// whatever the origin needs to dispatch a call.
type entry struct {
	Descriptor
	builtin       *builtinImpl
	remoteServer  *RemoteServerConfig
	webhookConfig *WebhookConfig
}

// Registry maintains the three partitions described in SPEC_FULL.md §4.1:
// process-wide built-ins, remote-process tools keyed by server id, and
// HTTP-webhook tools keyed by tool id. Built-in registration is safe to
// call concurrently with reads; the remote/webhook partitions are cleared
// by the chat handler and reloaded by the Tool Catalogue Loader once per
// request.
type Registry struct {
	mu sync.RWMutex

	builtins map[string]entry // name -> entry

	// remoteByServer groups remote-process tools by the server record they
	// were discovered from, so ReplaceRemoteTools can atomically replace a
	// single server's tools without disturbing others.
	remoteByServer map[string]map[string]entry // serverID -> name -> entry

	webhooks map[string]entry // name -> entry (keyed by tool name, BackendID = tool id)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins:       make(map[string]entry),
		remoteByServer: make(map[string]map[string]entry),
		webhooks:       make(map[string]entry),
	}
}

// RegisterBuiltinSimple registers a process-wide built-in with signature
// (args) -> text.
func (r *Registry) RegisterBuiltinSimple(name, description string, params map[string]any, fn SimpleBuiltin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = entry{
		Descriptor: Descriptor{Name: name, Description: description, Parameters: params, Origin: OriginBuiltin},
		builtin:    &builtinImpl{simple: fn},
	}
}

// RegisterBuiltinWithContext registers a process-wide built-in with
// signature (args, caller) -> text.
func (r *Registry) RegisterBuiltinWithContext(name, description string, params map[string]any, fn ContextBuiltin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[name] = entry{
		Descriptor: Descriptor{Name: name, Description: description, Parameters: params, Origin: OriginBuiltin},
		builtin:    &builtinImpl{withCtx: fn},
	}
}

// RemoteServerConfig is the dispatch-time configuration for a
// remote-process tool server: enough to construct a fresh adapter per call
// (spec.md §4.7 — "construct an adapter, call the tool, close the
// adapter").
type RemoteServerConfig struct {
	ServerID string
	Owner    string // user id, for ownership checks
	Disabled bool
	Transport RemoteTransport
}

// RemoteTransport is either a stdio (child-process) or HTTP configuration.
type RemoteTransport struct {
	Kind    string // "stdio" or "http"
	Command []string
	Env     map[string]string
	URL     string
}

// ReplaceRemoteTools atomically replaces the set of remote-process tools
// for a given server id (spec.md §4.1b).
func (r *Registry) ReplaceRemoteTools(cfg RemoteServerConfig, descriptors []Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[string]entry, len(descriptors))
	for _, d := range descriptors {
		d.Origin = OriginRemote
		d.BackendID = cfg.ServerID
		set[d.Name] = entry{Descriptor: d, remoteServer: &cfg}
	}
	r.remoteByServer[cfg.ServerID] = set
}

// WebhookConfig is the dispatch-time configuration for a custom HTTP
// webhook tool (spec.md §4.7).
type WebhookConfig struct {
	ToolID  string
	Owner   string
	Enabled bool
	URL     string
	Method  string
	Headers map[string]string
	Body    string // JSON template with {{name}} placeholders; empty means raw args object
}

// RegisterWebhookTool adds or replaces one custom HTTP-webhook tool.
func (r *Registry) RegisterWebhookTool(d Descriptor, cfg WebhookConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Origin = OriginWebhook
	d.BackendID = cfg.ToolID
	r.webhooks[d.Name] = entry{Descriptor: d, webhookConfig: &cfg}
}

// ClearUserScoped clears all remote and webhook tools without touching
// built-ins (spec.md §4.1c) — called at the start of every request by the
// chat handler (server.handleChat) before the Context Assembler loads the
// caller's catalogue.
func (r *Registry) ClearUserScoped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remoteByServer = make(map[string]map[string]entry)
	r.webhooks = make(map[string]entry)
}

// lookup resolves a tool name against the collision order built-in >
// remote-process > webhook (spec.md §4.1). Caller must hold r.mu.
func (r *Registry) lookup(name string) (entry, bool) {
	if e, ok := r.builtins[name]; ok {
		return e, true
	}
	for _, tools := range r.remoteByServer {
		if e, ok := tools[name]; ok {
			return e, true
		}
	}
	if e, ok := r.webhooks[name]; ok {
		return e, true
	}
	return entry{}, false
}

// Origin answers origin(name) for dispatch (spec.md §4.1e).
func (r *Registry) Origin(name string) (Origin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	return e.Origin, true
}

// Descriptor returns the catalogue entry's descriptor.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.lookup(name)
	if !ok {
		return Descriptor{}, false
	}
	return e.Descriptor, true
}

// Schemas renders the active set to the LLM's function-calling schema,
// optionally filtered by a user-enabled allowlist (spec.md §4.1d). A nil
// allowlist means "all tools visible".
func (r *Registry) Schemas(allowlist []string) []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allow map[string]bool
	if allowlist != nil {
		allow = make(map[string]bool, len(allowlist))
		for _, n := range allowlist {
			allow[n] = true
		}
	}

	seen := make(map[string]bool)
	var out []Descriptor
	add := func(d Descriptor) {
		if seen[d.Name] {
			return
		}
		if allow != nil && !allow[d.Name] {
			return
		}
		seen[d.Name] = true
		out = append(out, d)
	}
	for _, e := range r.builtins {
		add(e.Descriptor)
	}
	for _, set := range r.remoteByServer {
		for _, e := range set {
			add(e.Descriptor)
		}
	}
	for _, e := range r.webhooks {
		add(e.Descriptor)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	schemas := make([]map[string]any, len(out))
	for i, d := range out {
		schemas[i] = d.Schema()
	}
	return schemas
}
