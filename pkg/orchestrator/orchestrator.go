// Package orchestrator implements the Orchestrator Loop (SPEC_FULL.md
// §4.6): the bounded multi-round tool-calling state machine that drives one
// turn from the user's message to a terminal done/error event.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/stream"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// defaultRoundCap mirrors config.ServerConfig.RoundCap's default; callers
// normally pass the configured value instead.
const defaultRoundCap = 10

// Turn is the input the orchestrator needs for one request.
type Turn struct {
	Messages        []llm.Message // system + history + the new user message, in order
	ToolsSchema     []map[string]any
	Model           string
	RoundCap        int
	Caller          tools.CallerContext
	ReasoningEnabled bool
}

// Result is what the orchestrator hands back to the Persistence Writer
// once a turn reaches a terminal state.
type Result struct {
	AssistantText string
	ToolCalls     []llm.ToolCall
	ToolResults   []tools.Result
	Usage         *llm.Usage
	Err           error
}

// Orchestrator runs the per-turn round loop against a Provider and a tool
// Registry, following the teacher's outer/inner loop shape in
// pkg/agent/llmagent/flow.go's Flow.Run/runOneStep: each round calls the
// LLM, then executes any tool calls it returned, appending results to the
// working message list before the next round.
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	logger   *slog.Logger
}

func New(provider llm.Provider, registry *tools.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{provider: provider, registry: registry, logger: logger}
}

// Run drives the turn to completion, emitting every event via emit as it
// happens, and returns the final accumulated result. Strict event ordering
// (spec.md §8): within a round, reasoning/content deltas precede any
// tool_call/tool_result events, which precede the round's own completion;
// exactly one terminal done or error event is emitted across the whole
// turn, as the very last event.
func (o *Orchestrator) Run(ctx context.Context, turn Turn, emit func(stream.Event) error) Result {
	roundCap := turn.RoundCap
	if roundCap <= 0 {
		roundCap = defaultRoundCap
	}

	messages := append([]llm.Message(nil), turn.Messages...)

	var lastAssistantText string
	var lastToolCalls []llm.ToolCall
	var allToolResults []tools.Result
	var lastUsage *llm.Usage
	sawDone := false

	for round := 0; round < roundCap; round++ {
		if err := ctx.Err(); err != nil {
			return Result{Err: err}
		}

		req := llm.Request{Model: turn.Model, Messages: messages, Tools: turn.ToolsSchema, ReasoningEnabled: turn.ReasoningEnabled}
		chunks, err := o.provider.Stream(ctx, req)
		if err != nil {
			terminalErr := fmt.Errorf("orchestrator: round %d: start stream: %w", round, err)
			_ = emit(stream.Event{Type: "error", Data: terminalErr.Error()})
			return Result{Err: terminalErr}
		}

		var roundText string
		var roundToolCalls []llm.ToolCall
		var roundUsage *llm.Usage
		var streamErr error

		for chunk := range chunks {
			switch chunk.Type {
			case llm.ChunkReasoning:
				if err := emit(stream.Event{Type: "reasoning", Data: chunk.Text}); err != nil {
					return Result{Err: err}
				}
			case llm.ChunkContent:
				roundText += chunk.Text
				if err := emit(stream.Event{Type: "content", Data: chunk.Text}); err != nil {
					return Result{Err: err}
				}
			case llm.ChunkToolCalls:
				roundToolCalls = chunk.ToolCalls
			case llm.ChunkDone:
				roundUsage = chunk.Usage
			case llm.ChunkError:
				streamErr = chunk.Err
			}
		}

		if streamErr != nil {
			terminalErr := fmt.Errorf("orchestrator: round %d: %w", round, streamErr)
			_ = emit(stream.Event{Type: "error", Data: terminalErr.Error()})
			return Result{Err: terminalErr}
		}

		lastAssistantText = roundText
		if roundUsage != nil {
			lastUsage = roundUsage
			sawDone = true
		}

		if len(roundToolCalls) == 0 {
			// No tool calls: this round's response is the turn's final
			// answer. Some providers (or OpenAI-compatible gateways that
			// ignore stream_options.include_usage) never report usage on
			// ChunkDone; estimate it from the prompt/completion text rather
			// than persist a turn with no token accounting at all.
			if lastUsage == nil {
				lastUsage = llm.EstimateUsage(turn.Model, promptText(messages), lastAssistantText)
			}
			if err := emit(stream.Event{Type: "done", Extra: map[string]any{"usage": lastUsage, "model": turn.Model}}); err != nil {
				return Result{Err: err}
			}
			return Result{AssistantText: lastAssistantText, ToolCalls: lastToolCalls, ToolResults: allToolResults, Usage: lastUsage}
		}

		lastToolCalls = roundToolCalls
		messages = append(messages, llm.Message{Role: "assistant", Content: roundText, ToolCalls: roundToolCalls})

		for _, call := range roundToolCalls {
			if err := emit(stream.Event{Type: "tool_call", Data: map[string]any{
				"id": call.ID, "name": call.Name, "arguments": call.Arguments, "status": "calling",
			}}); err != nil {
				return Result{Err: err}
			}

			var args map[string]any
			if call.Arguments != "" {
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					o.logger.Warn("tool call arguments did not parse as JSON", "tool", call.Name, "error", err)
				}
			}

			result, dispatchErr := o.registry.Dispatch(ctx, call.Name, args, turn.Caller)
			if dispatchErr != nil {
				result = tools.Result{Success: false, Error: dispatchErr.Error()}
			}
			allToolResults = append(allToolResults, result)

			resultData := map[string]any{"id": call.ID, "name": call.Name}
			if result.Success {
				resultData["status"] = "success"
				resultData["result"] = result.Text
			} else {
				resultData["status"] = "error"
				resultData["error"] = result.Error
			}
			if err := emit(stream.Event{Type: "tool_result", Data: resultData}); err != nil {
				return Result{Err: err}
			}

			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    toolResultContent(result),
				ToolCallID: call.ID,
			})
		}
	}

	// Round cap reached. SPEC_FULL.md §5 decided behavior: if at least one
	// round completed with usage reported, emit done with that last known
	// usage instead of manufacturing a synthetic one; otherwise this turn
	// never produced a usable response, so it's a terminal error.
	if sawDone {
		if err := emit(stream.Event{Type: "done", Extra: map[string]any{"usage": lastUsage, "model": turn.Model}}); err != nil {
			return Result{Err: err}
		}
		return Result{AssistantText: lastAssistantText, ToolCalls: lastToolCalls, ToolResults: allToolResults, Usage: lastUsage}
	}

	terminalErr := fmt.Errorf("orchestrator: round cap (%d) reached without a completed response", roundCap)
	_ = emit(stream.Event{Type: "error", Data: terminalErr.Error()})
	return Result{Err: terminalErr}
}

func toolResultContent(r tools.Result) string {
	if r.Success {
		return r.Text
	}
	return fmt.Sprintf("error: %s", r.Error)
}

// promptText concatenates the working message list's content for the token
// estimator. It doesn't need to reproduce a provider's exact prompt
// formatting (role markers, tool-call JSON) since EstimateUsage is already
// an approximation, not a billing-accurate count.
func promptText(messages []llm.Message) string {
	var sb []byte
	for _, m := range messages {
		sb = append(sb, m.Content...)
		sb = append(sb, '\n')
	}
	return string(sb)
}
