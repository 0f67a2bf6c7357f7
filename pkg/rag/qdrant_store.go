package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore is the managed VectorStore backend, grounded on
// pkg/databases/qdrant.go's client construction and Search/Upsert shape.
type QdrantStore struct {
	client *qdrant.Client
}

func NewQdrantStore(host string, port int, apiKey string, useTLS bool) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: create qdrant client for %s:%d: %w", host, port, err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, doc Document, vector []float32) error {
	payload := make(map[string]*qdrant.Value, len(doc.Metadata)+2)
	payload["text"] = qdrant.NewValueString(doc.Text)
	payload["ready"] = qdrant.NewValueBool(doc.Ready)
	for k, v := range doc.Metadata {
		switch tv := v.(type) {
		case string:
			payload[k] = qdrant.NewValueString(tv)
		case int:
			payload[k] = qdrant.NewValueInt(int64(tv))
		}
	}

	_, err := qdrant.NewPointsClient(s.client).Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewID(doc.ID),
				Vectors: qdrant.NewVectors(vector...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant upsert: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, queryVector []float32, topK int) ([]SearchResult, error) {
	resp, err := qdrant.NewPointsClient(s.client).Search(ctx, &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant search: %w", err)
	}

	out := make([]SearchResult, 0, len(resp.Result))
	for _, point := range resp.Result {
		doc := Document{Metadata: map[string]any{}}
		if point.Payload != nil {
			if v, ok := point.Payload["text"]; ok {
				doc.Text = v.GetStringValue()
			}
			if v, ok := point.Payload["ready"]; ok {
				doc.Ready = v.GetBoolValue()
			}
			if v, ok := point.Payload["source"]; ok {
				doc.Metadata["source"] = v.GetStringValue()
			}
			if v, ok := point.Payload["page"]; ok {
				doc.Metadata["page"] = int(v.GetIntegerValue())
			}
		}
		out = append(out, SearchResult{Document: doc, Score: point.Score})
	}
	return out, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}
