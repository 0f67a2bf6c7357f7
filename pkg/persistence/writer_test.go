package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// commitTurn runs the two-step commit (user message, then assistant turn)
// a real request performs across the orchestrator loop, for tests that
// only care about the end state of a completed turn.
func commitTurn(t *testing.T, w *Writer, conversationID, tenantID, userID, userMessage, assistantText string, isFirstTurn bool, totalTokens int64) {
	t.Helper()
	ctx := context.Background()
	seq, err := w.CommitUserMessage(ctx, conversationID, tenantID, userID, userMessage, isFirstTurn)
	if err != nil {
		t.Fatalf("commit user message: %v", err)
	}
	if err := w.CommitAssistantTurn(ctx, TurnResult{
		ConversationID: conversationID,
		TenantID:       tenantID,
		UserSequence:   seq,
		AssistantText:  assistantText,
		TotalTokens:    totalTokens,
	}); err != nil {
		t.Fatalf("commit assistant turn: %v", err)
	}
}

func TestWriterCommitFirstTurnCreatesConversation(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	ctx := context.Background()

	commitTurn(t, w, "conv-1", "tenant-a", "user-1", "hello there", "hi, how can I help?", true, 42)

	userID, tenantID, err := ConversationOwner(ctx, db, "conv-1")
	if err != nil {
		t.Fatalf("conversation owner: %v", err)
	}
	if userID != "user-1" || tenantID != "tenant-a" {
		t.Errorf("unexpected owner: %s/%s", userID, tenantID)
	}

	history, err := HistorySlice(ctx, db, "conv-1", 10)
	if err != nil {
		t.Fatalf("history slice: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("expected user-then-assistant ordering, got %s, %s", history[0].Role, history[1].Role)
	}
	if history[0].SequenceNum >= history[1].SequenceNum {
		t.Errorf("expected strictly increasing sequence numbers, got %d, %d", history[0].SequenceNum, history[1].SequenceNum)
	}
}

func TestWriterCommitSubsequentTurnAppendsMessages(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)

	commitTurn(t, w, "conv-1", "t", "u", "first", "reply one", true, 0)
	commitTurn(t, w, "conv-1", "t", "u", "second", "reply two", false, 0)

	history, err := HistorySlice(context.Background(), db, "conv-1", 10)
	if err != nil {
		t.Fatalf("history slice: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 messages across two turns, got %d", len(history))
	}
	for i := 1; i < len(history); i++ {
		if history[i].SequenceNum <= history[i-1].SequenceNum {
			t.Fatalf("expected strictly increasing sequence across turns, got %+v", history)
		}
	}
}

func TestCommitUserMessagePersistsIndependentlyOfAssistantTurn(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)
	ctx := context.Background()

	// Mirrors spec.md §3: the user message must be durable even if the
	// turn that follows it never produces an assistant message (e.g. an
	// LLM stream error), so CommitUserMessage alone must be enough.
	seq, err := w.CommitUserMessage(ctx, "conv-1", "t", "u", "hello", true)
	if err != nil {
		t.Fatalf("commit user message: %v", err)
	}
	if seq != 0 {
		t.Errorf("expected first message at sequence 0, got %d", seq)
	}

	history, err := HistorySlice(ctx, db, "conv-1", 10)
	if err != nil {
		t.Fatalf("history slice: %v", err)
	}
	if len(history) != 1 || history[0].Role != "user" || history[0].Content != "hello" {
		t.Fatalf("expected a single persisted user message, got %+v", history)
	}
}

func TestConversationOwnerUnknownConversation(t *testing.T) {
	db := openTestDB(t)
	_, _, err := ConversationOwner(context.Background(), db, "does-not-exist")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestHistorySliceRespectsLimitAndOrder(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)

	commitTurn(t, w, "conv-1", "t", "u", "m1", "a1", true, 0)
	commitTurn(t, w, "conv-1", "t", "u", "m2", "a2", false, 0)

	history, err := HistorySlice(context.Background(), db, "conv-1", 2)
	if err != nil {
		t.Fatalf("history slice: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected limit of 2 messages, got %d", len(history))
	}
	if history[0].Content != "m2" || history[1].Content != "a2" {
		t.Errorf("expected the most recent 2 messages in chronological order, got %+v", history)
	}
}
