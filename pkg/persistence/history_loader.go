package persistence

import (
	"context"
	"database/sql"

	"github.com/convoyhq/orchestrator/pkg/llm"
)

// HistoryLoader adapts HistorySlice to assembler.HistoryLoader, converting
// the stored message rows into the provider-agnostic llm.Message shape the
// orchestrator's working message list is built from.
type HistoryLoader struct {
	DB *sql.DB
}

func (h *HistoryLoader) LoadHistory(ctx context.Context, conversationID string, n int) ([]llm.Message, error) {
	rows, err := HistorySlice(ctx, h.DB, conversationID, n)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, len(rows))
	for i, row := range rows {
		out[i] = llm.Message{Role: row.Role, Content: row.Content}
	}
	return out, nil
}
