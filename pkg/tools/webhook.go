package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// webhookResponseCap bounds how much of a webhook's response body is
// surfaced back to the model, mirroring the teacher's web_request.go
// MaxResponseSize guard.
const webhookResponseCap = 16 * 1024

// webhookClient is the process-wide HTTP client used for custom webhook
// tools. A short default timeout keeps one slow tenant webhook from
// stalling a turn indefinitely.
var webhookClient = &http.Client{Timeout: 20 * time.Second}

// callWebhook invokes a user-defined HTTP webhook tool (spec.md §4.7): the
// body is either the raw arguments object, or, when cfg.Body is set, a
// JSON template with {{name}} placeholders substituted from args.
func callWebhook(ctx context.Context, cfg WebhookConfig, args map[string]any) (Result, error) {
	if !cfg.Enabled {
		return Result{Success: false, Error: "webhook tool is disabled"}, nil
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := renderWebhookBody(cfg.Body, args)
	if err != nil {
		return Result{}, fmt.Errorf("webhook %s: %w", cfg.ToolID, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("webhook %s: build request: %w", cfg.ToolID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := webhookClient.Do(req)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, webhookResponseCap+1))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("read response: %v", err)}, nil
	}
	truncated := len(respBody) > webhookResponseCap
	if truncated {
		respBody = respBody[:webhookResponseCap]
	}

	text := string(respBody)
	if truncated {
		text += "\n... truncated"
	}

	if resp.StatusCode >= 400 {
		return Result{Success: false, Error: fmt.Sprintf("http %d: %s", resp.StatusCode, text)}, nil
	}
	return Result{Success: true, Text: text}, nil
}

// renderWebhookBody substitutes {{key}} placeholders in the template with
// the JSON-encoded value of args[key]; an empty template falls back to
// marshalling args directly.
func renderWebhookBody(template string, args map[string]any) ([]byte, error) {
	if template == "" {
		return json.Marshal(args)
	}
	out := template
	for k, v := range args {
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode argument %s: %w", k, err)
		}
		placeholder := "{{" + k + "}}"
		if strings.Contains(out, "\""+placeholder+"\"") {
			out = strings.ReplaceAll(out, "\""+placeholder+"\"", string(encoded))
		} else {
			out = strings.ReplaceAll(out, placeholder, strings.Trim(string(encoded), "\""))
		}
	}
	return []byte(out), nil
}
