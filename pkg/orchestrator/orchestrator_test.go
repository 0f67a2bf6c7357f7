package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/stream"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// scriptedProvider streams the chunk sequences in rounds, one round per
// Stream call, so tests can script multi-round tool-calling turns.
type scriptedProvider struct {
	rounds [][]llm.Chunk
	calls  int
}

func (p *scriptedProvider) Stream(context.Context, llm.Request) (<-chan llm.Chunk, error) {
	if p.calls >= len(p.rounds) {
		return nil, errors.New("scriptedProvider: no more rounds scripted")
	}
	round := p.rounds[p.calls]
	p.calls++

	out := make(chan llm.Chunk, len(round))
	for _, c := range round {
		out <- c
	}
	close(out)
	return out, nil
}

func collectEvents(t *testing.T) (func(stream.Event) error, func() []stream.Event) {
	t.Helper()
	var events []stream.Event
	return func(e stream.Event) error {
		events = append(events, e)
		return nil
	}, func() []stream.Event { return events }
}

func TestRunSingleRoundNoToolCalls(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{
			{Type: llm.ChunkContent, Text: "hello"},
			{Type: llm.ChunkDone, Usage: &llm.Usage{TotalTokens: 10}},
		},
	}}
	emit, events := collectEvents(t)
	orch := New(provider, tools.NewRegistry(), nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Model:    "gpt-test",
	}, emit)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.AssistantText != "hello" {
		t.Errorf("expected assistant text 'hello', got %q", result.AssistantText)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 10 {
		t.Errorf("expected usage to propagate, got %+v", result.Usage)
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("expected content + done events, got %d: %+v", len(got), got)
	}
	if got[len(got)-1].Type != "done" {
		t.Errorf("expected last event to be 'done', got %q", got[len(got)-1].Type)
	}
}

func TestRunEstimatesUsageWhenProviderNeverReportsIt(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{
			{Type: llm.ChunkContent, Text: "hello there"},
			{Type: llm.ChunkDone}, // no Usage: an OpenAI-compatible gateway that ignores include_usage
		},
	}}
	emit, _ := collectEvents(t)
	orch := New(provider, tools.NewRegistry(), nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Model:    "gpt-test",
	}, emit)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Usage == nil || result.Usage.TotalTokens == 0 {
		t.Errorf("expected a non-zero estimated usage, got %+v", result.Usage)
	}
}

func TestRunExecutesToolCallThenContinues(t *testing.T) {
	registry := tools.NewRegistry()
	registry.RegisterBuiltinSimple("echo", "echo text", nil, func(_ context.Context, args map[string]any) (string, error) {
		text, _ := args["text"].(string)
		return text, nil
	})

	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{
			{Type: llm.ChunkToolCalls, ToolCalls: []llm.ToolCall{{ID: "1", Name: "echo", Arguments: `{"text":"ping"}`}}},
		},
		{
			{Type: llm.ChunkContent, Text: "done responding"},
			{Type: llm.ChunkDone, Usage: &llm.Usage{TotalTokens: 5}},
		},
	}}

	emit, events := collectEvents(t)
	orch := New(provider, registry, nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "echo ping"}},
		Model:    "gpt-test",
	}, emit)

	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.ToolResults) != 1 || !result.ToolResults[0].Success {
		t.Fatalf("expected one successful tool result, got %+v", result.ToolResults)
	}

	got := events()
	var sawToolCall, sawToolResult, sawDoneLast bool
	for i, e := range got {
		switch e.Type {
		case "tool_call":
			sawToolCall = true
		case "tool_result":
			sawToolResult = true
		case "done":
			sawDoneLast = i == len(got)-1
		}
	}
	if !sawToolCall || !sawToolResult {
		t.Fatalf("expected tool_call and tool_result events, got %+v", got)
	}
	if !sawDoneLast {
		t.Fatalf("expected done to be the terminal event, got %+v", got)
	}
}

func TestRunRoundCapWithPriorDoneEmitsDone(t *testing.T) {
	echoToolCall := llm.Chunk{Type: llm.ChunkToolCalls, ToolCalls: []llm.ToolCall{{ID: "1", Name: "noop"}}}
	registry := tools.NewRegistry()
	registry.RegisterBuiltinSimple("noop", "does nothing", nil, func(context.Context, map[string]any) (string, error) {
		return "", nil
	})

	// Every round reports usage but also keeps calling a tool, so the cap
	// is hit with sawDone=true.
	rounds := make([][]llm.Chunk, 3)
	for i := range rounds {
		rounds[i] = []llm.Chunk{
			{Type: llm.ChunkDone, Usage: &llm.Usage{TotalTokens: int64(i + 1)}},
			echoToolCall,
		}
	}
	provider := &scriptedProvider{rounds: rounds}
	emit, events := collectEvents(t)
	orch := New(provider, registry, nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "loop"}},
		Model:    "gpt-test",
		RoundCap: 3,
	}, emit)

	if result.Err != nil {
		t.Fatalf("expected round-cap-with-prior-done to succeed, got error: %v", result.Err)
	}
	if result.Usage == nil || result.Usage.TotalTokens != 3 {
		t.Errorf("expected last known usage (3), got %+v", result.Usage)
	}

	got := events()
	if got[len(got)-1].Type != "done" {
		t.Errorf("expected terminal event to be 'done', got %q", got[len(got)-1].Type)
	}
}

func TestRunRoundCapWithoutDoneEmitsError(t *testing.T) {
	toolCall := llm.Chunk{Type: llm.ChunkToolCalls, ToolCalls: []llm.ToolCall{{ID: "1", Name: "noop"}}}
	registry := tools.NewRegistry()
	registry.RegisterBuiltinSimple("noop", "does nothing", nil, func(context.Context, map[string]any) (string, error) {
		return "", nil
	})

	rounds := [][]llm.Chunk{{toolCall}, {toolCall}}
	provider := &scriptedProvider{rounds: rounds}
	emit, events := collectEvents(t)
	orch := New(provider, registry, nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "loop"}},
		Model:    "gpt-test",
		RoundCap: 2,
	}, emit)

	if result.Err == nil {
		t.Fatal("expected round cap without any done to produce a terminal error")
	}

	got := events()
	if got[len(got)-1].Type != "error" {
		t.Errorf("expected terminal event to be 'error', got %q", got[len(got)-1].Type)
	}
}

func TestRunStreamErrorIsTerminal(t *testing.T) {
	provider := &scriptedProvider{rounds: [][]llm.Chunk{
		{{Type: llm.ChunkError, Err: errors.New("upstream exploded")}},
	}}
	emit, events := collectEvents(t)
	orch := New(provider, tools.NewRegistry(), nil)

	result := orch.Run(context.Background(), Turn{
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Model:    "gpt-test",
	}, emit)

	if result.Err == nil {
		t.Fatal("expected stream error to be terminal")
	}
	got := events()
	if len(got) != 1 || got[0].Type != "error" {
		t.Errorf("expected a single terminal error event, got %+v", got)
	}
}
