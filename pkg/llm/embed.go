package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Embedder produces the vector embedding RAG passage retrieval indexes and
// searches by. Grounded on the teacher's pkg/embedders/openai.go, ported
// from its hand-rolled HTTP client onto the official openai-go SDK already
// used by pkg/llm's chat provider.
type Embedder struct {
	client openai.Client
	model  string
}

func NewEmbedder(apiKey, baseURL, model string) *Embedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Embedder{client: openai.NewClient(opts...), model: model}
}

// Embed implements rag.Retriever's Embed field.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: e.model,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: embeddings API returned no data")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}
