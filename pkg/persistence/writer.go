package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maxTitleRunes bounds how much of the first user message becomes the
// conversation title.
const maxTitleRunes = 60

// Writer commits a turn in two transactions, the user message
// (CommitUserMessage) and then the assistant turn (CommitAssistantTurn),
// each opened fresh rather than reusing whatever
// connection served the streaming session (spec.md §4.8 — persistence is
// decoupled from the streaming session's DB connection so a slow write
// never blocks the stream, and a dropped stream connection never aborts
// the write).
type Writer struct {
	db *sql.DB
}

func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// TurnResult is everything one completed turn needs persisted on the
// assistant side, once the user message (see CommitUserMessage) has
// already been written.
type TurnResult struct {
	ConversationID   string
	TenantID         string
	UserSequence     int64
	AssistantText    string
	ToolCallsJSON    string
	ToolResultsJSON  string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// CommitUserMessage writes the conversation row (inserted on the first
// turn, touched otherwise) and the user message in one transaction,
// independent of how the turn that follows ends. spec.md §3 requires the
// user message to be persisted before the LLM is ever invoked, so callers
// must call this before starting the orchestrator loop, not after it. The
// returned sequence number anchors the assistant message CommitAssistantTurn
// writes later at sequence+1.
func (w *Writer) CommitUserMessage(ctx context.Context, conversationID, tenantID, userID, userMessage string, isFirstTurn bool) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if isFirstTurn {
		title := truncateTitle(userMessage)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, tenant_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			conversationID, tenantID, userID, title, now, now,
		); err != nil {
			return 0, fmt.Errorf("persistence: insert conversation: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`,
			now, conversationID,
		); err != nil {
			return 0, fmt.Errorf("persistence: update conversation: %w", err)
		}
	}

	nextSeq, err := w.nextSequence(ctx, tx, conversationID)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, tool_calls_json, tool_results_json, sequence_num, created_at) VALUES (?, 'user', ?, '', '', ?, ?)`,
		conversationID, userMessage, nextSeq, now,
	); err != nil {
		return 0, fmt.Errorf("persistence: insert user message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("persistence: commit: %w", err)
	}
	return nextSeq, nil
}

// CommitAssistantTurn writes the assistant message and usage record for a
// turn whose user message was already committed by CommitUserMessage.
// Callers only reach this after the orchestrator loop succeeds (spec.md
// §7: on an LLM stream error the assistant message and usage are skipped,
// not just deferred).
func (w *Writer) CommitAssistantTurn(ctx context.Context, result TurnResult) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("persistence: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now, result.ConversationID,
	); err != nil {
		return fmt.Errorf("persistence: update conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, tool_calls_json, tool_results_json, sequence_num, created_at) VALUES (?, 'assistant', ?, ?, ?, ?, ?)`,
		result.ConversationID, result.AssistantText, result.ToolCallsJSON, result.ToolResultsJSON, result.UserSequence+1, now,
	); err != nil {
		return fmt.Errorf("persistence: insert assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO usage_records (conversation_id, tenant_id, model, prompt_tokens, completion_tokens, total_tokens, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ConversationID, result.TenantID, result.Model, result.PromptTokens, result.CompletionTokens, result.TotalTokens, now,
	); err != nil {
		return fmt.Errorf("persistence: insert usage record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("persistence: commit: %w", err)
	}
	return nil
}

func (w *Writer) nextSequence(ctx context.Context, tx *sql.Tx, conversationID string) (int64, error) {
	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence_num) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&max); err != nil {
		return 0, fmt.Errorf("persistence: next sequence: %w", err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64 + 1, nil
}

func truncateTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleRunes {
		return text
	}
	return string(runes[:maxTitleRunes]) + "..."
}

// ConversationOwner looks up a conversation's owning user and tenant, for
// the server layer's ownership check (spec.md §6 — a conversation owned by
// another user returns 404, not 403, to avoid leaking existence).
func ConversationOwner(ctx context.Context, db *sql.DB, conversationID string) (userID, tenantID string, err error) {
	err = db.QueryRowContext(ctx,
		`SELECT user_id, tenant_id FROM conversations WHERE id = ?`, conversationID,
	).Scan(&userID, &tenantID)
	if err != nil {
		return "", "", err
	}
	return userID, tenantID, nil
}

// HistorySlice loads the most recent n messages for a conversation in
// chronological order, for the Context Assembler's history fan-out.
func HistorySlice(ctx context.Context, db *sql.DB, conversationID string, n int) ([]Message, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, tool_calls_json, tool_results_json, sequence_num, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY sequence_num DESC LIMIT ?`,
		conversationID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: history slice: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.ToolCallsJSON, &m.ToolResultsJSON, &m.SequenceNum, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("persistence: scan history row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: history rows: %w", err)
	}
	// reverse to chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
