package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync/atomic"
)

// rpcNotification is a JSON-RPC 2.0 notification: no ID field, and the
// server must never reply to it.
type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// stdioRemoteAdapter speaks line-delimited JSON-RPC 2.0 over a child
// process's stdin/stdout, the transport MCP servers distributed as local
// binaries use. A fresh process is started per dispatch call and killed
// once the call completes (spec.md §4.7, §5 — "exclusive ownership...
// released when the call completes").
type stdioRemoteAdapter struct {
	command []string
	env     map[string]string
	nextID  atomic.Int64
}

func newStdioRemoteAdapter(command []string, env map[string]string) *stdioRemoteAdapter {
	return &stdioRemoteAdapter{command: command, env: env}
}

func (a *stdioRemoteAdapter) CallTool(ctx context.Context, name string, args map[string]any) (Result, error) {
	sess, err := a.start(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("remote tool %s: %w", name, err)
	}
	defer sess.close()

	if err := a.handshake(sess); err != nil {
		return Result{}, fmt.Errorf("remote tool %s: %w", name, err)
	}

	resp, err := sess.call(rpcRequest{JSONRPC: "2.0", ID: int(a.nextID.Add(1)), Method: "tools/call", Params: callParams{Name: name, Arguments: args}})
	if err != nil {
		return Result{}, fmt.Errorf("remote tool %s: %w", name, err)
	}
	if resp.Error != nil {
		return Result{Success: false, Error: resp.Error.Message}, nil
	}
	return extractRemoteResult(resp.Result), nil
}

func (a *stdioRemoteAdapter) discoverTools(ctx context.Context) ([]Descriptor, error) {
	sess, err := a.start(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	if err := a.handshake(sess); err != nil {
		return nil, err
	}

	resp, err := sess.call(rpcRequest{JSONRPC: "2.0", ID: int(a.nextID.Add(1)), Method: "tools/list", Params: map[string]any{}})
	if err != nil {
		return nil, err
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
		descName, _ := item["name"].(string)
		if descName == "" {
			continue
		}
		description, _ := item["description"].(string)
		params, _ := item["inputSchema"].(map[string]any)
		descriptors = append(descriptors, Descriptor{Name: descName, Description: description, Parameters: params})
	}
	return descriptors, nil
}

// handshake sends initialize, waits for its response, then sends
// notifications/initialized — a JSON-RPC notification the server must
// never reply to, which is why it isn't routed through sess.call.
func (a *stdioRemoteAdapter) handshake(sess *stdioSession) error {
	resp, err := sess.call(rpcRequest{JSONRPC: "2.0", ID: int(a.nextID.Add(1)), Method: "initialize", Params: map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "convoyd", "version": "1.0.0"},
	}})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize: %s", resp.Error.Message)
	}
	return sess.notify(rpcNotification{JSONRPC: "2.0", Method: "notifications/initialized"})
}

// stdioSession is one child process's stdin/stdout, kept open across a
// handshake and the request that follows it so notifications/initialized
// can be written without reading a paired response.
type stdioSession struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
}

func (a *stdioRemoteAdapter) start(ctx context.Context) (*stdioSession, error) {
	if len(a.command) == 0 {
		return nil, fmt.Errorf("no command configured for stdio remote tool server")
	}

	cmd := exec.CommandContext(ctx, a.command[0], a.command[1:]...)
	for k, v := range a.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &stdioSession{cmd: cmd, stdin: stdin, scanner: scanner}, nil
}

func (s *stdioSession) close() {
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

// call writes a JSON-RPC request line and reads back the one response line
// the server must send in reply.
func (s *stdioSession) call(req rpcRequest) (rpcResponse, error) {
	if err := s.writeLine(req); err != nil {
		return rpcResponse{}, err
	}
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return rpcResponse{}, fmt.Errorf("read response: %w", err)
		}
		return rpcResponse{}, fmt.Errorf("process closed stdout before responding")
	}
	var resp rpcResponse
	if err := json.Unmarshal(s.scanner.Bytes(), &resp); err != nil {
		return rpcResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}

// notify writes a JSON-RPC notification line and, since a notification
// never gets a response, does not read from stdout.
func (s *stdioSession) notify(n rpcNotification) error {
	return s.writeLine(n)
}

func (s *stdioSession) writeLine(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
