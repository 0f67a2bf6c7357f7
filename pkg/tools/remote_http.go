package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// defaultSSEResponseTimeout bounds how long a streamable-http MCP server's
// SSE-framed response is read for, mirroring the teacher's
// DefaultMCPSSEResponseTimeout (pkg/tools/mcp.go).
const defaultSSEResponseTimeout = 5 * time.Minute

// rpcRequest and rpcResponse are the JSON-RPC 2.0 envelope shared by both
// remote-tool transports (spec.md §6 "remote-tool protocol").
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// httpRemoteAdapter is a one-shot JSON-RPC-over-HTTP client for a single
// remote-process tool server, with streamable-http session continuity via
// the mcp-session-id header. A fresh adapter is constructed per dispatch
// call (spec.md §4.7); the session id is not expected to outlive one call
// since the caller does not persist the adapter across calls.
type httpRemoteAdapter struct {
	url        string
	httpClient *http.Client
	ssTimeout  time.Duration

	mu        sync.Mutex
	sessionID string
}

func newHTTPRemoteAdapter(url string) *httpRemoteAdapter {
	return &httpRemoteAdapter{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ssTimeout:  defaultSSEResponseTimeout,
	}
}

// CallTool discovers nothing and assumes the server is already known to
// expose this tool; it issues initialize (best-effort, non-fatal on
// failure) followed by tools/call.
func (a *httpRemoteAdapter) CallTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	_, _ = a.request(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "convoyd", "version": "1.0.0"},
	})
	_ = a.notify(ctx, "notifications/initialized", nil)

	resp, err := a.request(ctx, "tools/call", callParams{Name: name, Arguments: args})
	if err != nil {
		return Result{}, fmt.Errorf("remote tool %s: %w", name, err)
	}
	if resp.Error != nil {
		return Result{Success: false, Error: resp.Error.Message}, nil
	}
	return extractRemoteResult(resp.Result), nil
}

// discoverTools issues initialize followed by tools/list, returning the
// descriptors this server advertises.
func (a *httpRemoteAdapter) discoverTools(ctx context.Context) ([]Descriptor, error) {
	_, _ = a.request(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "convoyd", "version": "1.0.0"},
	})
	_ = a.notify(ctx, "notifications/initialized", nil)

	resp, err := a.request(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %s", resp.Error.Message)
	}

	result, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("tools/list: unexpected result shape")
	}
	rawTools, _ := result["tools"].([]any)
	descriptors := make([]Descriptor, 0, len(rawTools))
	for _, raw := range rawTools {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := item["name"].(string)
		if name == "" {
			continue
		}
		description, _ := item["description"].(string)
		params, _ := item["inputSchema"].(map[string]any)
		descriptors = append(descriptors, Descriptor{Name: name, Description: description, Parameters: params})
	}
	return descriptors, nil
}

func (a *httpRemoteAdapter) request(ctx context.Context, method string, params any) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	a.mu.Lock()
	sessionID := a.sessionID
	a.mu.Unlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if sid := resp.Header.Get("mcp-session-id"); sid != "" {
		a.mu.Lock()
		a.sessionID = sid
		a.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http status %d: %s", resp.StatusCode, string(b))
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/event-stream") {
		return readSSEResponse(resp.Body, a.ssTimeout)
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// notify posts a JSON-RPC notification and discards the response: a
// notification has no id and the server must not reply to it with a
// JSON-RPC response body (real MCP servers return 202 Accepted with an
// empty body). Failures are non-fatal since initialize already
// established whatever session state the server needs.
func (a *httpRemoteAdapter) notify(ctx context.Context, method string, params any) error {
	body, err := json.Marshal(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	a.mu.Lock()
	sessionID := a.sessionID
	a.mu.Unlock()
	if sessionID != "" {
		req.Header.Set("mcp-session-id", sessionID)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// readSSEResponse reads a single JSON-RPC response framed as a
// "data: <json>\n\n" SSE event from a streamable-http MCP server, bounded
// by timeout.
func readSSEResponse(body io.Reader, timeout time.Duration) (*rpcResponse, error) {
	type result struct {
		resp *rpcResponse
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		reader := bufio.NewReader(body)
		var data strings.Builder
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err == io.EOF {
					break
				}
				ch <- result{err: fmt.Errorf("read sse: %w", err)}
				return
			}
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if data.Len() > 0 {
					break
				}
				continue
			}
			if after, ok := strings.CutPrefix(trimmed, "data:"); ok {
				data.WriteString(strings.TrimSpace(after))
			}
		}
		if data.Len() == 0 {
			ch <- result{err: fmt.Errorf("empty sse response")}
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(data.String()), &resp); err != nil {
			ch <- result{err: fmt.Errorf("unmarshal sse data: %w", err)}
			return
		}
		ch <- result{resp: &resp}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("sse response timed out after %s", timeout)
	}
}

// extractRemoteResult normalizes a tools/call result into Result, handling
// both the standard MCP content-array shape and plain string/object
// fallbacks, and detecting an isError flag or error-prefixed content as a
// failed call.
func extractRemoteResult(raw any) Result {
	m, ok := raw.(map[string]any)
	if !ok {
		return Result{Success: true, Text: fmt.Sprintf("%v", raw)}
	}

	if isErr, _ := m["isError"].(bool); isErr {
		return Result{Success: false, Error: extractContentText(m)}
	}

	text := extractContentText(m)
	if strings.HasPrefix(strings.ToLower(text), "error:") {
		return Result{Success: false, Error: text}
	}
	return Result{Success: true, Text: text}
}

func extractContentText(m map[string]any) string {
	content, ok := m["content"].([]any)
	if !ok {
		if text, ok := m["text"].(string); ok {
			return text
		}
		return fmt.Sprintf("%v", m)
	}
	var sb strings.Builder
	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := block["text"].(string); ok {
			sb.WriteString(text)
		}
	}
	return sb.String()
}
