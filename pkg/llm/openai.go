package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider adapts the OpenAI chat-completions streaming API to the
// Provider interface.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("openai: build tool schema: %w", err)
		}
		params.Tools = tools
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan Chunk, 16)
	go func() {
		defer close(out)
		acc := newToolCallAccumulator()
		var usage *Usage

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens != 0 {
				usage = &Usage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			if req.ReasoningEnabled {
				if rc := reasoningContentDelta(delta.RawJSON()); rc != "" {
					select {
					case out <- Chunk{Type: ChunkReasoning, Text: rc}:
					case <-ctx.Done():
						return
					}
				}
			}
			if delta.Content != "" {
				select {
				case out <- Chunk{Type: ChunkContent, Text: delta.Content}:
				case <-ctx.Done():
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				var argsFragment string
				if tc.Function.Arguments != "" {
					argsFragment = tc.Function.Arguments
				}
				acc.addDelta(int(tc.Index), tc.ID, tc.Function.Name, argsFragment)
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- Chunk{Type: ChunkError, Err: fmt.Errorf("openai stream: %w", err)}:
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
		select {
		case out <- Chunk{Type: ChunkDone, Usage: usage}:
		case <-ctx.Done():
		}
	}()
	return out, nil
}

// reasoningContentDelta extracts an OpenAI-compatible gateway's untyped
// "reasoning_content" delta field (DeepSeek, Groq, and similar providers),
// which the openai-go SDK doesn't model as a typed struct field. rawJSON is
// the delta's raw JSON text as reported by the SDK.
func reasoningContentDelta(rawJSON string) string {
	if rawJSON == "" {
		return ""
	}
	var v struct {
		ReasoningContent string `json:"reasoning_content"`
	}
	if err := json.Unmarshal([]byte(rawJSON), &v); err != nil {
		return ""
	}
	return v.ReasoningContent
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "user":
			out = append(out, openai.UserMessage(m.Content))
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case "assistant":
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			param := openai.ChatCompletionAssistantMessageParam{
				Content: openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				},
			}
			for _, tc := range m.ToolCalls {
				param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &param})
		}
	}
	return out
}

func toOpenAITools(schemas []map[string]any) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(schemas))
	for _, s := range schemas {
		fn, ok := s["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool schema missing function object")
		}
		name, _ := fn["name"].(string)
		description, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]any)
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        name,
				Description: openai.String(description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out, nil
}
