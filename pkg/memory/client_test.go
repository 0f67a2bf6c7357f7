package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRecallReturnsFactsFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recall" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req recallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.UserID != "user-1" {
			t.Errorf("expected user_id to be forwarded, got %q", req.UserID)
		}
		json.NewEncoder(w).Encode(recallResponse{
			Facts:       []Fact{{ID: "f1", Content: "likes go"}, {ID: "f2", Content: "lives in berlin"}},
			Preferences: []Preference{{ID: "p1", Type: "tone", Content: "prefers concise answers"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	facts, prefs, err := c.Recall(context.Background(), "user-1", "what do you know about me")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %+v", facts)
	}
	if len(prefs) != 1 || prefs[0].Content != "prefers concise answers" {
		t.Fatalf("expected 1 preference, got %+v", prefs)
	}
}

func TestRecallWithEmptyBaseURLIsNoop(t *testing.T) {
	c := NewClient("", nil)
	facts, prefs, err := c.Recall(context.Background(), "user-1", "query")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if facts != nil || prefs != nil {
		t.Errorf("expected nil facts/preferences with no configured memory service, got %+v / %+v", facts, prefs)
	}
}

func TestWriteBackSubmitsTurnToService(t *testing.T) {
	received := make(chan writeBackRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req writeBackRequest
		json.NewDecoder(r.Body).Decode(&req)
		received <- req
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	c.WriteBack("user-1", "conv-1", "user said hi, assistant replied hello")

	select {
	case req := <-received:
		if req.UserID != "user-1" || req.ConversationID != "conv-1" {
			t.Errorf("unexpected write-back payload: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write-back request")
	}
}

func TestWriteBackWithEmptyBaseURLIsNoop(t *testing.T) {
	c := NewClient("", nil)
	// Must not panic or block; there is no server to talk to.
	c.WriteBack("user-1", "conv-1", "turn text")
}
