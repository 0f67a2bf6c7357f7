package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemStore is the embedded VectorStore backend, used for local
// deployments and in tests where spinning up a managed Qdrant instance
// isn't warranted.
type ChromemStore struct {
	db *chromem.DB

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("rag: open chromem db at %s: %w", path, err)
		}
	}
	return &ChromemStore{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

// collection returns (creating if needed) the named collection. chromem-go
// collections own their own embedding function; since this store is always
// called with precomputed vectors, nil is passed (leaving chromem-go's
// default embedding function configured but never invoked) and vectors are
// passed explicitly on every call.
func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: get or create collection %s: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

func (s *ChromemStore) Upsert(ctx context.Context, collection string, doc Document, vector []float32) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	metadata := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		switch tv := v.(type) {
		case string:
			metadata[k] = tv
		case int:
			metadata[k] = strconv.Itoa(tv)
		}
	}
	if doc.Ready {
		metadata["ready"] = "true"
	} else {
		metadata["ready"] = "false"
	}
	err = c.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Text,
		Metadata:  metadata,
		Embedding: vector,
	})
	if err != nil {
		return fmt.Errorf("rag: chromem add document: %w", err)
	}
	return nil
}

func (s *ChromemStore) Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]SearchResult, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	n := topK
	if count := c.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}
	results, err := c.QueryEmbedding(ctx, queryVector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("rag: chromem query: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, res := range results {
		metadata := map[string]any{}
		if source, ok := res.Metadata["source"]; ok {
			metadata["source"] = source
		}
		if page, ok := res.Metadata["page"]; ok {
			if n, err := strconv.Atoi(page); err == nil {
				metadata["page"] = n
			}
		}
		out = append(out, SearchResult{
			Document: Document{
				ID:       res.ID,
				Text:     res.Content,
				Metadata: metadata,
				Ready:    res.Metadata["ready"] == "true",
			},
			Score: res.Similarity,
		})
	}
	return out, nil
}

func (s *ChromemStore) Close() error { return nil }
