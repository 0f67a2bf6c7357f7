package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/convoyhq/orchestrator/pkg/assembler"
	"github.com/convoyhq/orchestrator/pkg/auth"
	"github.com/convoyhq/orchestrator/pkg/config"
	"github.com/convoyhq/orchestrator/pkg/llm"
	"github.com/convoyhq/orchestrator/pkg/orchestrator"
	"github.com/convoyhq/orchestrator/pkg/persistence"
	"github.com/convoyhq/orchestrator/pkg/stream"
	"github.com/convoyhq/orchestrator/pkg/tools"
)

// chatRequest is the client->server body (spec.md §6).
type chatRequest struct {
	ConversationID  string           `json:"conversation_id,omitempty"`
	Model           string           `json:"model"`
	Messages        []chatMessage    `json:"messages"`
	ThinkingEnabled bool             `json:"thinking_enabled,omitempty"`
	KBIDs           []string         `json:"kb_ids,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChat implements the chat endpoint end to end: validation, ownership
// and quota checks, context assembly, the orchestrator loop, and
// post-stream persistence + memory write-back (spec.md §4, §6).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 || req.Messages[0].Content == "" {
		http.Error(w, "missing or empty first message content", http.StatusBadRequest)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())

	conversationID := req.ConversationID
	isFirstTurn := conversationID == ""
	if isFirstTurn {
		conversationID = uuid.NewString()
	} else {
		ownerID, tenantID, err := persistence.ConversationOwner(r.Context(), s.deps.DB, conversationID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			http.Error(w, "unknown conversation", http.StatusBadRequest)
			return
		case err != nil:
			s.deps.Logger.Error("conversation lookup failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		case identity.UserID != "" && ownerID != identity.UserID:
			http.Error(w, "not found", http.StatusNotFound)
			return
		default:
			identity.TenantID = tenantID
		}
	}

	provider, ok := s.deps.Models.Resolve(req.Model)
	if !ok {
		http.Error(w, "unknown model id", http.StatusBadRequest)
		return
	}

	tenantCfg := s.tenantConfig(r, identity.TenantID)
	if tenantCfg.HasQuota() {
		allowed, err := s.deps.QuotaGate.Allow(r.Context(), identity.TenantID, tenantCfg.MonthlyTokenQuota)
		if err != nil {
			s.deps.Logger.Error("quota check failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "quota exhausted", http.StatusTooManyRequests)
			return
		}
	}
	if !tenantCfg.AllowsModel(req.Model) {
		http.Error(w, "unknown model id", http.StatusBadRequest)
		return
	}

	userMessage := req.Messages[0].Content

	emitter, err := stream.NewEmitter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	_ = emitter.Send(stream.Event{Type: "meta", Data: map[string]string{"conversation_id": conversationID}})

	userSequence, err := s.persistUserMessage(r.Context(), conversationID, identity, isFirstTurn, userMessage)
	if err != nil {
		s.deps.Logger.Error("user message persist failed", "conversation_id", conversationID, "error", err)
		_ = emitter.Send(stream.Event{Type: "error", Data: "internal error"})
		return
	}

	s.deps.ToolRegistry.ClearUserScoped()

	historyWindow := s.deps.Config.Server.HistoryWindow
	assembled := s.deps.Assembler.Assemble(r.Context(), assembler.Request{
		UserID:         identity.UserID,
		TenantID:       identity.TenantID,
		ConversationID: conversationID,
		UserMessage:    userMessage,
		HistoryWindow:  historyWindow,
		RAGCollections: req.KBIDs,
		RAGTopK:        s.deps.Config.RAG.DefaultTopK,
	})

	if len(assembled.MemoryFacts) > 0 || len(assembled.MemoryPrefs) > 0 {
		_ = emitter.Send(stream.Event{Type: "memory_recall", Data: map[string]any{
			"memories":    assembled.MemoryFacts,
			"preferences": assembled.MemoryPrefs,
		}})
	}
	if len(assembled.Passages) > 0 {
		_ = emitter.Send(stream.Event{Type: "rag_source", Data: assembled.Passages})
	}

	systemPrompt := assembler.BuildSystemPrompt("You are a helpful assistant.", assembled)
	messages := append([]llm.Message{{Role: "system", Content: systemPrompt}}, assembled.History...)
	messages = append(messages, llm.Message{Role: "user", Content: userMessage})

	orch := orchestrator.New(provider, s.deps.ToolRegistry, s.deps.Logger)
	turn := orchestrator.Turn{
		Messages:         messages,
		ToolsSchema:      assembled.ToolSchemas,
		Model:            req.Model,
		RoundCap:         s.deps.Config.Server.RoundCap,
		ReasoningEnabled: req.ThinkingEnabled,
		Caller: tools.CallerContext{
			UserID:   identity.UserID,
			TenantID: identity.TenantID,
			DB:       s.deps.DB,
			Request:  r,
		},
	}

	result := orch.Run(r.Context(), turn, emitter.Send)
	if result.Err != nil {
		s.deps.Logger.Warn("turn ended in error", "conversation_id", conversationID, "error", result.Err)
		return
	}

	s.persistAndWriteBack(r.Context(), conversationID, identity, userSequence, userMessage, req.Model, result)
}

// tenantConfig looks up the caller's tenant configuration. Its HasQuota/
// AllowsModel methods are nil-receiver safe, so a missing lookup or a
// tenant-less turn both read as "unrestricted, unlimited".
func (s *Server) tenantConfig(r *http.Request, tenantID string) *config.TenantConfig {
	if s.deps.Tenants == nil || tenantID == "" {
		return nil
	}
	cfg, err := s.deps.Tenants.Lookup(r.Context(), tenantID)
	if err != nil {
		return nil
	}
	return cfg
}
