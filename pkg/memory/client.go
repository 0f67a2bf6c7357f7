// Package memory implements the long-term memory client: recall (used by
// the Context Assembler) and write-back (fired once a turn completes,
// the original spec's Memory Write-Back component).
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to an external memory service over HTTP. The service's own
// storage/ranking is out of this module's scope — this is a thin recall/
// write-back client, matching the spec's "Memory recall and write-back
// call into an external memory service" framing.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

type recallRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// Fact is one recalled long-term memory item, shaped for the chat stream's
// memory_recall event (spec.md §6).
type Fact struct {
	ID        string  `json:"id"`
	Content   string  `json:"content"`
	Relevance float32 `json:"relevance"`
	Source    string  `json:"source,omitempty"`
}

// Preference is one recalled user preference, also carried on the
// memory_recall event.
type Preference struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type recallResponse struct {
	Facts       []Fact       `json:"facts"`
	Preferences []Preference `json:"preferences"`
}

// Recall implements assembler.MemoryRecaller.
func (c *Client) Recall(ctx context.Context, userID, query string) ([]Fact, []Preference, error) {
	if c.baseURL == "" {
		return nil, nil, nil
	}
	body, err := json.Marshal(recallRequest{UserID: userID, Query: query})
	if err != nil {
		return nil, nil, fmt.Errorf("memory: marshal recall request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/recall", bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("memory: build recall request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("memory: recall request failed: %w", err)
	}
	defer resp.Body.Close()

	var out recallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("memory: decode recall response: %w", err)
	}
	return out.Facts, out.Preferences, nil
}

type writeBackRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	Turn           string `json:"turn"`
}

// WriteBack submits the turn's text to long-term memory as a detached
// background task: it does not block the caller and its failure is only
// logged, never surfaced to the user, since memory write-back is best
// effort (spec.md §4.4a/§5 — submitted after the stream completes,
// independent of the request's lifetime).
func (c *Client) WriteBack(userID, conversationID, turn string) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		body, err := json.Marshal(writeBackRequest{UserID: userID, ConversationID: conversationID, Turn: turn})
		if err != nil {
			c.logger.Warn("memory write-back: marshal failed", "error", err)
			return
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/write-back", bytes.NewReader(body))
		if err != nil {
			c.logger.Warn("memory write-back: build request failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("memory write-back failed", "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			c.logger.Warn("memory write-back returned error status", "status", resp.StatusCode)
		}
	}()
}
