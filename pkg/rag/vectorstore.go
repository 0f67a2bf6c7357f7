// Package rag implements passage retrieval over a pluggable vector store
// (SPEC_FULL.md §4.4a): a managed Qdrant backend and an embedded
// chromem-go backend behind one interface, with "ready" document
// filtering and top-k retrieval for the Context Assembler.
package rag

import "context"

// Document is one retrievable passage.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]any
	Ready    bool // false for documents still being ingested/embedded
}

// SearchResult is a scored retrieval hit.
type SearchResult struct {
	Document Document
	Score    float32
}

// Passage is one retrieved passage as the Context Assembler and the chat
// stream's rag_source event (spec.md §6) consume it.
type Passage struct {
	Content string  `json:"content"`
	Score   float32 `json:"score"`
	Source  string  `json:"source,omitempty"`
	Page    int     `json:"page,omitempty"`
}

// VectorStore is the storage-agnostic interface both backends implement,
// narrowed from the teacher's DatabaseProvider (pkg/databases/qdrant.go)
// to the operations RAG passage retrieval actually needs.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, doc Document, vector []float32) error
	Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]SearchResult, error)
	Close() error
}

// Retriever wraps a VectorStore with an embedding function and the
// "ready documents only" filtering policy (SPEC_FULL.md §4.4a).
type Retriever struct {
	Store VectorStore
	Embed func(ctx context.Context, text string) ([]float32, error)
	// TopK is the fallback result count used when a caller's Retrieve
	// request doesn't specify one.
	TopK int
}

// Retrieve implements assembler.PassageRetriever: embeds query, searches
// every collection, filters out documents not yet marked ready, and
// returns the merged top-k passages by score. A failing collection is
// skipped rather than aborting the whole retrieval — the Context Assembler
// treats the entire call as best-effort anyway, but skipping per-collection
// keeps one bad collection from hiding passages in the others.
func (r *Retriever) Retrieve(ctx context.Context, collections []string, query string, topK int) ([]Passage, error) {
	if r.Embed == nil || len(collections) == 0 {
		return nil, nil
	}
	vector, err := r.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = r.TopK
	}
	if topK <= 0 {
		topK = 5
	}

	var merged []SearchResult
	for _, collection := range collections {
		results, err := r.Store.Search(ctx, collection, vector, topK)
		if err != nil {
			continue
		}
		for _, res := range results {
			if res.Document.Ready {
				merged = append(merged, res)
			}
		}
	}

	sortByScoreDesc(merged)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	passages := make([]Passage, len(merged))
	for i, res := range merged {
		source, _ := res.Document.Metadata["source"].(string)
		page, _ := res.Document.Metadata["page"].(int)
		passages[i] = Passage{Content: res.Document.Text, Score: res.Score, Source: source, Page: page}
	}
	return passages, nil
}

func sortByScoreDesc(results []SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
