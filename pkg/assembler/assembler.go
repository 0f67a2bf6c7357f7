// Package assembler implements the Context Assembler (SPEC_FULL.md §4.4):
// the concurrent fan-out that builds one turn's LLM request context from
// memory recall, RAG passage retrieval, conversation history, and the
// caller's tool catalogue — each source degrading independently to empty
// on failure or timeout rather than failing the whole turn.
package assembler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/memory"
	"github.com/convoyhq/orchestrator/pkg/rag"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// recallTimeout and ragTimeout bound how long each auxiliary source gets
// before the assembler gives up on it and proceeds with what it has.
const (
	recallTimeout = 3 * time.Second
	ragTimeout    = 3 * time.Second
)

// MemoryRecaller fetches long-term memory facts and preferences relevant
// to a user's message. Implementations talk to an external memory
// service.
type MemoryRecaller interface {
	Recall(ctx context.Context, userID, query string) ([]memory.Fact, []memory.Preference, error)
}

// PassageRetriever fetches RAG passages relevant to a user's message from
// one or more knowledge-base collections.
type PassageRetriever interface {
	Retrieve(ctx context.Context, collections []string, query string, topK int) ([]rag.Passage, error)
}

// HistoryLoader loads the most recent messages of a conversation.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, conversationID string, n int) ([]llm.Message, error)
}

// CatalogueLoader installs a user's remote MCP servers and custom webhook
// tools into the shared tool registry before its schemas are rendered for
// the turn (spec.md §4.4 item 5, "Tool Catalogue Loader").
type CatalogueLoader interface {
	Load(ctx context.Context, userID string) error
}

// Assembler wires the four concurrent sources together.
type Assembler struct {
	Memory    MemoryRecaller
	RAG       PassageRetriever
	History   HistoryLoader
	Registry  *tools.Registry
	Catalogue CatalogueLoader
	Logger    *slog.Logger
}

// Request describes one turn's assembly inputs.
type Request struct {
	UserID         string
	TenantID       string
	ConversationID string
	UserMessage    string
	HistoryWindow  int
	RAGCollections []string
	RAGTopK        int
	ToolAllowlist  []string
}

// Assembled is the fully-built context the Orchestrator Loop consumes.
type Assembled struct {
	History         []llm.Message
	MemoryFacts     []memory.Fact
	MemoryPrefs     []memory.Preference
	Passages        []rag.Passage
	ToolSchemas     []map[string]any
}

// Assemble runs all four sources concurrently and degrades independently:
// a source that errors or times out contributes an empty result and a
// logged warning, never a failed turn (spec.md §4.4, §5).
func (a *Assembler) Assemble(ctx context.Context, req Request) Assembled {
	var (
		wg       sync.WaitGroup
		history  []llm.Message
		facts    []memory.Fact
		prefs    []memory.Preference
		passages []rag.Passage
		schemas  []map[string]any
	)

	wg.Add(4)

	go func() {
		defer wg.Done()
		if a.History == nil {
			return
		}
		h, err := a.History.LoadHistory(ctx, req.ConversationID, req.HistoryWindow)
		if err != nil {
			a.logger().Warn("history load failed, continuing without it", "error", err)
			return
		}
		history = h
	}()

	go func() {
		defer wg.Done()
		if a.Memory == nil {
			return
		}
		recallCtx, cancel := context.WithTimeout(ctx, recallTimeout)
		defer cancel()
		f, p, err := a.Memory.Recall(recallCtx, req.UserID, req.UserMessage)
		if err != nil {
			a.logger().Warn("memory recall failed, continuing without it", "error", err)
			return
		}
		facts, prefs = f, p
	}()

	go func() {
		defer wg.Done()
		if a.RAG == nil || len(req.RAGCollections) == 0 {
			return
		}
		ragCtx, cancel := context.WithTimeout(ctx, ragTimeout)
		defer cancel()
		p, err := a.RAG.Retrieve(ragCtx, req.RAGCollections, req.UserMessage, req.RAGTopK)
		if err != nil {
			a.logger().Warn("RAG retrieval failed, continuing without it", "error", err)
			return
		}
		passages = p
	}()

	go func() {
		defer wg.Done()
		if a.Registry == nil {
			return
		}
		if a.Catalogue != nil {
			if err := a.Catalogue.Load(ctx, req.UserID); err != nil {
				a.logger().Warn("tool catalogue load failed, continuing with built-ins only", "error", err)
			}
		}
		schemas = a.Registry.Schemas(req.ToolAllowlist)
	}()

	wg.Wait()

	return Assembled{History: history, MemoryFacts: facts, MemoryPrefs: prefs, Passages: passages, ToolSchemas: schemas}
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// BuildSystemPrompt composes the system message from the assembled memory
// facts and RAG passages, so the orchestrator's first message carries
// whatever auxiliary context was successfully gathered.
func BuildSystemPrompt(base string, assembled Assembled) string {
	prompt := base
	if len(assembled.MemoryFacts) > 0 {
		prompt += "\n\nRelevant memory:\n"
		for _, f := range assembled.MemoryFacts {
			prompt += "- " + f.Content + "\n"
		}
	}
	if len(assembled.MemoryPrefs) > 0 {
		prompt += "\n\nUser preferences:\n"
		for _, p := range assembled.MemoryPrefs {
			prompt += "- " + p.Content + "\n"
		}
	}
	if len(assembled.Passages) > 0 {
		prompt += "\n\nRelevant passages:\n"
		for _, p := range assembled.Passages {
			prompt += "- " + p.Content + "\n"
		}
	}
	return prompt
}
