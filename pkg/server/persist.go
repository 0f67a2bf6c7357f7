package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/convoyhq/orchestrator/pkg/auth"
	"github.com/convoyhq/orchestrator/pkg/orchestrator"
	"github.com/convoyhq/orchestrator/pkg/persistence"
)

// persistUserMessage commits the user's message on its own, before the
// orchestrator loop ever runs (spec.md §3: "a user message is persisted
// before the LLM is invoked"). It returns the message's sequence number so
// the later assistant-turn commit can anchor itself at sequence+1 even if
// the stream fails in between.
func (s *Server) persistUserMessage(ctx context.Context, conversationID string, identity auth.Identity, isFirstTurn bool, userMessage string) (int64, error) {
	writer := persistence.NewWriter(s.deps.DB)
	return writer.CommitUserMessage(ctx, conversationID, identity.TenantID, identity.UserID, userMessage, isFirstTurn)
}

// persistAndWriteBack runs the Persistence Writer's assistant-side commit
// and fires memory write-back after a turn's stream has ended successfully
// (spec.md §4.8, §7). It opens its own context rather than reusing the
// request's: the request context dies with the client's connection, but
// persistence must complete (and memory write-back must fire) even if the
// client disconnected the instant the stream finished.
func (s *Server) persistAndWriteBack(requestCtx context.Context, conversationID string, identity auth.Identity, userSequence int64, userMessage, model string, result orchestrator.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(requestCtx), 10*time.Second)
	defer cancel()
	toolCallsJSON, _ := json.Marshal(result.ToolCalls)
	toolResultsJSON, _ := json.Marshal(result.ToolResults)

	var prompt, completion, total int64
	if result.Usage != nil {
		prompt, completion, total = result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens
	}

	writer := persistence.NewWriter(s.deps.DB)
	err := writer.CommitAssistantTurn(ctx, persistence.TurnResult{
		ConversationID:   conversationID,
		TenantID:         identity.TenantID,
		UserSequence:     userSequence,
		AssistantText:    result.AssistantText,
		ToolCallsJSON:    string(toolCallsJSON),
		ToolResultsJSON:  string(toolResultsJSON),
		Model:            model,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	})
	if err != nil {
		s.deps.Logger.Error("persistence commit failed", "conversation_id", conversationID, "error", err)
	}

	if total > 0 && s.deps.QuotaGate != nil {
		if err := s.deps.QuotaGate.Record(ctx, identity.TenantID, total); err != nil {
			s.deps.Logger.Error("quota record failed", "conversation_id", conversationID, "error", err)
		}
	}

	if s.deps.MemoryClient != nil {
		s.deps.MemoryClient.WriteBack(identity.UserID, conversationID, userMessage+"\n"+result.AssistantText)
	}
}
