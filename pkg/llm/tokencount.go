package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates token counts for a model when a provider's
// streaming payload never reports usage, grounded on the teacher's
// pkg/utils.TokenCounter, narrowed to the single Count operation the
// orchestrator's usage fallback needs.
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

var (
	encodingCacheMu sync.Mutex
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
)

// NewTokenCounter resolves model's encoding, falling back to cl100k_base for
// model names tiktoken-go doesn't recognize (e.g. a third-party
// OpenAI-compatible model id).
func NewTokenCounter(model string) (*TokenCounter, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TokenCounter{encoding: enc}, nil
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encodingCache[model] = enc
	return &TokenCounter{encoding: enc}, nil
}

// Count returns the estimated token count for text.
func (tc *TokenCounter) Count(text string) int64 {
	return int64(len(tc.encoding.Encode(text, nil, nil)))
}

// EstimateUsage builds a Usage estimate from prompt and completion text, for
// the orchestrator to fall back on when a round's ChunkDone never carried
// usage. A nil return means even the cl100k_base fallback encoding failed to
// load, in which case the caller keeps usage nil rather than reporting a
// fabricated zero count.
func EstimateUsage(model, promptText, completionText string) *Usage {
	tc, err := NewTokenCounter(model)
	if err != nil {
		return nil
	}
	prompt := tc.Count(promptText)
	completion := tc.Count(completionText)
	return &Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}
