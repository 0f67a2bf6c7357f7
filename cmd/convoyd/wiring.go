package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/convoyhq/orchestrator/pkg/config"
	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/quota"
	"github.com/convoyhq/orchestrator/pkg/rag"
)

// buildQuotaStore constructs the quota counter store named by cfg.Backend,
// returning a no-op close func for the in-memory store so callers can
// always defer the result.
func buildQuotaStore(cfg config.QuotaConfig) (quota.Store, func() error, error) {
	switch cfg.Backend {
	case "redis":
		store, err := quota.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis quota store: %w", err)
		}
		return store, store.Close, nil
	default:
		store := quota.NewMemoryStore()
		return store, store.Close, nil
	}
}

// buildRAGRetriever constructs a rag.Retriever backed by whichever vector
// store the RAG config's collections name, and an embedding function built
// from the configured embedder credentials. Returns a nil retriever (and
// no error) when no collections are configured, since a chat request with
// no kb_ids never calls into RAG retrieval.
func buildRAGRetriever(cfg config.RAGConfig) (*rag.Retriever, func() error, error) {
	if len(cfg.Collections) == 0 {
		return nil, nil, nil
	}

	// One store type backs the whole retriever: the first qdrant-backed
	// collection decides the backend, since a single store's client
	// addresses every named collection by name.
	store, closeStore, err := buildVectorStore(cfg.Collections)
	if err != nil {
		return nil, nil, err
	}

	embedder := llm.NewEmbedder(cfg.EmbedderAPIKey, cfg.EmbedderBaseURL, cfg.EmbedderModel)

	return &rag.Retriever{
		Store: store,
		Embed: embedder.Embed,
		TopK:  cfg.DefaultTopK,
	}, closeStore, nil
}

func buildVectorStore(collections map[string]config.VectorBackend) (rag.VectorStore, func() error, error) {
	for _, backend := range collections {
		if backend.Type == "qdrant" {
			host, port := splitHostPort(backend.URL)
			store, err := rag.NewQdrantStore(host, port, "", false)
			if err != nil {
				return nil, nil, fmt.Errorf("build qdrant store: %w", err)
			}
			return store, store.Close, nil
		}
	}

	store, err := rag.NewChromemStore("")
	if err != nil {
		return nil, nil, fmt.Errorf("build chromem store: %w", err)
	}
	return store, store.Close, nil
}

// splitHostPort parses a "host:port" address, defaulting to Qdrant's gRPC
// port when addr has no port or fails to parse.
func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6334
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6334
	}
	return host, port
}
