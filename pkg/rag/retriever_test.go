package rag

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	results map[string][]SearchResult
	errs    map[string]error
}

func (f *fakeStore) Upsert(context.Context, string, Document, []float32) error { return nil }

func (f *fakeStore) Search(_ context.Context, collection string, _ []float32, topK int) ([]SearchResult, error) {
	if err, ok := f.errs[collection]; ok {
		return nil, err
	}
	results := f.results[collection]
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (f *fakeStore) Close() error { return nil }

func fakeEmbed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func TestRetrieveFiltersUnreadyDocuments(t *testing.T) {
	store := &fakeStore{results: map[string][]SearchResult{
		"kb1": {
			{Document: Document{ID: "a", Text: "ready passage", Ready: true}, Score: 0.9},
			{Document: Document{ID: "b", Text: "unready passage", Ready: false}, Score: 0.95},
		},
	}}
	r := &Retriever{Store: store, Embed: fakeEmbed, TopK: 5}

	got, err := r.Retrieve(context.Background(), []string{"kb1"}, "query", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Content != "ready passage" {
		t.Errorf("expected only the ready passage, got %+v", got)
	}
}

func TestRetrieveMergesAndOrdersAcrossCollections(t *testing.T) {
	store := &fakeStore{results: map[string][]SearchResult{
		"kb1": {{Document: Document{ID: "a", Text: "low score", Ready: true}, Score: 0.3}},
		"kb2": {{Document: Document{ID: "b", Text: "high score", Ready: true}, Score: 0.9}},
	}}
	r := &Retriever{Store: store, Embed: fakeEmbed}

	got, err := r.Retrieve(context.Background(), []string{"kb1", "kb2"}, "query", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 || got[0].Content != "high score" || got[1].Content != "low score" {
		t.Errorf("expected descending score order across collections, got %+v", got)
	}
}

func TestRetrieveSkipsFailingCollection(t *testing.T) {
	store := &fakeStore{
		results: map[string][]SearchResult{
			"kb2": {{Document: Document{ID: "b", Text: "survives", Ready: true}, Score: 0.5}},
		},
		errs: map[string]error{"kb1": errors.New("collection unavailable")},
	}
	r := &Retriever{Store: store, Embed: fakeEmbed}

	got, err := r.Retrieve(context.Background(), []string{"kb1", "kb2"}, "query", 5)
	if err != nil {
		t.Fatalf("expected per-collection failures to be swallowed, got %v", err)
	}
	if len(got) != 1 || got[0].Content != "survives" {
		t.Errorf("expected the surviving collection's passage, got %+v", got)
	}
}

func TestRetrieveTruncatesToTopK(t *testing.T) {
	store := &fakeStore{results: map[string][]SearchResult{
		"kb1": {
			{Document: Document{ID: "a", Text: "first", Ready: true}, Score: 0.9},
			{Document: Document{ID: "b", Text: "second", Ready: true}, Score: 0.8},
			{Document: Document{ID: "c", Text: "third", Ready: true}, Score: 0.7},
		},
	}}
	r := &Retriever{Store: store, Embed: fakeEmbed}

	got, err := r.Retrieve(context.Background(), []string{"kb1"}, "query", 2)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected results truncated to topK=2, got %d: %+v", len(got), got)
	}
}

func TestRetrievePropagatesSourceMetadata(t *testing.T) {
	store := &fakeStore{results: map[string][]SearchResult{
		"kb1": {
			{Document: Document{ID: "a", Text: "cited passage", Ready: true, Metadata: map[string]any{"source": "handbook.pdf", "page": 12}}, Score: 0.8},
		},
	}}
	r := &Retriever{Store: store, Embed: fakeEmbed}

	got, err := r.Retrieve(context.Background(), []string{"kb1"}, "query", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0].Source != "handbook.pdf" || got[0].Page != 12 {
		t.Errorf("expected source/page metadata to propagate, got %+v", got)
	}
}

func TestRetrieveNoCollectionsIsNoop(t *testing.T) {
	r := &Retriever{Store: &fakeStore{}, Embed: fakeEmbed}
	got, err := r.Retrieve(context.Background(), nil, "query", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil passages with no collections, got %+v", got)
	}
}

func TestChromemStoreUpsertAndSearchRoundTrip(t *testing.T) {
	store, err := NewChromemStore("")
	if err != nil {
		t.Fatalf("new chromem store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	doc := Document{ID: "doc-1", Text: "hello world", Ready: true}
	if err := store.Upsert(ctx, "kb1", doc, []float32{1, 0, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := store.Search(ctx, "kb1", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Document.Text != "hello world" {
		t.Errorf("expected round-tripped document, got %+v", results)
	}
	if !results[0].Document.Ready {
		t.Errorf("expected ready=true to survive the round trip")
	}
}
