package llm

import (
	"fmt"

	"github.com/convoyhq/orchestrator/pkg/config"
)

// Registry resolves a model id to the concrete Provider that serves it,
// grounded on the teacher's pkg/llms/registry.go LLMRegistry (name-keyed
// lookup, built from config at startup).
type Registry struct {
	byModel map[string]Provider
}

// NewRegistry builds every configured provider and indexes it by each of
// its declared model ids.
func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	r := &Registry{byModel: make(map[string]Provider)}

	for name, p := range cfg.Providers {
		var provider Provider
		switch p.Type {
		case "openai":
			provider = NewOpenAIProvider(p.APIKey, p.BaseURL)
		case "anthropic":
			provider = NewAnthropicProvider(p.APIKey, p.BaseURL)
		default:
			return nil, fmt.Errorf("llm: provider %q has unsupported type %q", name, p.Type)
		}

		for _, model := range p.Models {
			if existing, ok := r.byModel[model]; ok && existing != nil {
				return nil, fmt.Errorf("llm: model id %q is claimed by more than one provider", model)
			}
			r.byModel[model] = provider
		}
	}

	return r, nil
}

// Resolve returns the provider serving modelID, or false if no configured
// provider claims it (spec.md §6 — this drives the chat endpoint's
// "unknown model id" 400 response).
func (r *Registry) Resolve(modelID string) (Provider, bool) {
	p, ok := r.byModel[modelID]
	return p, ok
}

// NewRegistryFromProviders builds a Registry directly from a model->Provider
// map, bypassing config-driven construction. Used by tests that need to
// resolve a model id to a fake Provider without standing up a real
// OpenAI/Anthropic client.
func NewRegistryFromProviders(byModel map[string]Provider) *Registry {
	return &Registry{byModel: byModel}
}
