// Package stream implements the Event Emitter (SPEC_FULL.md §4.9): SSE
// serialization of the orchestrator's event sequence over HTTP.
package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Event is one SSE event the orchestrator emits. Type mirrors the
// orchestrator's chunk type ("reasoning", "content", "tool_call",
// "tool_result", "done", "error"). Data is marshaled under the "data" key
// for every event type except "done", whose usage/model fields sit beside
// "type" rather than nested under it (spec.md §6) — set those via Extra.
type Event struct {
	Type  string
	Data  any
	Extra map[string]any
}

// Emitter writes SSE-framed events to an HTTP response, flushing after
// every event. Unlike the teacher's a2a server (pkg/a2a/server.go,
// sendSSEEvent), this emitter writes a single "data: <json>\n\n" line per
// event with no separate "event: <type>" line — spec.md §6 defines the SSE
// schema as one JSON object per event carrying its own "type" field.
type Emitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewEmitter sets the SSE response headers and returns an Emitter, or an
// error if the ResponseWriter doesn't support flushing.
func NewEmitter(w http.ResponseWriter) (*Emitter, error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Emitter{w: w, flusher: flusher}, nil
}

// Send writes one event and flushes immediately, so the client sees each
// chunk as soon as it's produced rather than buffered behind a later one.
func (e *Emitter) Send(event Event) error {
	payload := map[string]any{"type": event.Type}
	if event.Data != nil {
		payload["data"] = event.Data
	}
	for k, v := range event.Extra {
		payload[k] = v
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("stream: marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", jsonData); err != nil {
		return fmt.Errorf("stream: write event: %w", err)
	}
	e.flusher.Flush()
	return nil
}
