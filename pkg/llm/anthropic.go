package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider adapts the Anthropic Messages streaming API to the
// Provider interface. Anthropic's stream reports input token usage once at
// message_start and output tokens incrementally, which this adapter
// reduces to a single usage value reported on the terminal ChunkDone, same
// as the OpenAI adapter, so the orchestrator never branches on provider.
type AnthropicProvider struct {
	client anthropic.Client
}

// thinkingBudgetTokens bounds extended-thinking output whenever reasoning
// mode is requested; when the caller didn't set an explicit MaxTokens it is
// also added on top of the default max-tokens value.
const thinkingBudgetTokens = 2048

func NewAnthropicProvider(apiKey, baseURL string) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

func (p *AnthropicProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	var system string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
				continue
			}
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var args any
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 4096
		if req.ReasoningEnabled {
			maxTokens += thinkingBudgetTokens
		}
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	if req.ReasoningEnabled {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(thinkingBudgetTokens)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		acc := newToolCallAccumulator()
		currentIndex := -1
		var usage Usage

		for stream.Next() {
			event := stream.Current()
			switch e := event.AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = e.Message.Usage.InputTokens
			case anthropic.ContentBlockStartEvent:
				currentIndex = int(e.Index)
				if block, ok := e.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					acc.addDelta(currentIndex, block.ID, block.Name, "")
				}
			case anthropic.ContentBlockDeltaEvent:
				switch d := e.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					select {
					case out <- Chunk{Type: ChunkContent, Text: d.Text}:
					case <-ctx.Done():
						return
					}
				case anthropic.InputJSONDelta:
					acc.addDelta(int(e.Index), "", "", d.PartialJSON)
				case anthropic.ThinkingDelta:
					select {
					case out <- Chunk{Type: ChunkReasoning, Text: d.Thinking}:
					case <-ctx.Done():
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = e.Usage.OutputTokens
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- Chunk{Type: ChunkError, Err: fmt.Errorf("anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		if calls := acc.finish(); len(calls) > 0 {
			select {
			case out <- Chunk{Type: ChunkToolCalls, ToolCalls: calls}:
			case <-ctx.Done():
				return
			}
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		select {
		case out <- Chunk{Type: ChunkDone, Usage: &usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

func toAnthropicTools(schemas []map[string]any) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(schemas))
	for _, s := range schemas {
		fn, ok := s["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]any)
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        name,
				Description: anthropic.String(description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: params["properties"],
					Required:   toStringSlice(params["required"]),
				},
			},
		})
	}
	return out
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
