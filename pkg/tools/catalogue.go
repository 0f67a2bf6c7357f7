package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/convoyhq/orchestrator/pkg/persistence"
)

// CatalogueLoader implements assembler.CatalogueLoader (SPEC_FULL.md §4.4
// item 5, "Tool Catalogue Loader"): at the start of a turn it reads a
// user's MCP server and custom webhook tool records, discovers each MCP
// server's live tool set over its transport, and installs both into the
// shared Registry before the Context Assembler renders Schemas().
type CatalogueLoader struct {
	DB       *sql.DB
	Registry *Registry
	Logger   *slog.Logger
}

func NewCatalogueLoader(db *sql.DB, registry *Registry, logger *slog.Logger) *CatalogueLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogueLoader{DB: db, Registry: registry, Logger: logger}
}

// Load installs every MCP server and custom tool a user owns. Each server
// is discovered independently: one unreachable server is logged and
// skipped rather than aborting the whole load, consistent with the
// Context Assembler's degrade-independently policy (spec.md §4.4, §5).
func (l *CatalogueLoader) Load(ctx context.Context, userID string) error {
	if l.DB == nil || userID == "" {
		return nil
	}

	servers, err := persistence.MCPServersForOwner(ctx, l.DB, userID)
	if err != nil {
		return fmt.Errorf("tools: load mcp servers: %w", err)
	}
	for _, s := range servers {
		cfg := RemoteServerConfig{
			ServerID: s.ID,
			Owner:    s.Owner,
			Disabled: s.Disabled,
			Transport: RemoteTransport{
				Kind:    s.TransportKind,
				Command: splitCommand(s.Command),
				Env:     parseEnv(s.CommandEnv),
				URL:     s.URL,
			},
		}
		descriptors, err := DiscoverRemoteTools(ctx, cfg)
		if err != nil {
			l.Logger.Warn("mcp server discovery failed, continuing without it", "server_id", s.ID, "error", err)
			continue
		}
		l.Registry.ReplaceRemoteTools(cfg, descriptors)
	}

	customTools, err := persistence.CustomToolsForOwner(ctx, l.DB, userID)
	if err != nil {
		return fmt.Errorf("tools: load custom tools: %w", err)
	}
	for _, t := range customTools {
		var params map[string]any
		if t.ParametersJSON != "" {
			if err := json.Unmarshal([]byte(t.ParametersJSON), &params); err != nil {
				l.Logger.Warn("custom tool has invalid parameters schema, skipping", "tool_id", t.ID, "error", err)
				continue
			}
		}
		var headers map[string]string
		if t.HeadersJSON != "" {
			if err := json.Unmarshal([]byte(t.HeadersJSON), &headers); err != nil {
				l.Logger.Warn("custom tool has invalid headers, skipping", "tool_id", t.ID, "error", err)
				continue
			}
		}
		l.Registry.RegisterWebhookTool(
			Descriptor{Name: t.Name, Description: t.Description, Parameters: params},
			WebhookConfig{
				ToolID:  t.ID,
				Owner:   t.Owner,
				Enabled: t.Enabled,
				URL:     t.URL,
				Method:  t.Method,
				Headers: headers,
				Body:    t.BodyTemplate,
			},
		)
	}
	return nil
}

// splitCommand splits a stored space-separated command string into argv,
// mirroring the simple shape mcp_servers.command is persisted in.
func splitCommand(command string) []string {
	if command == "" {
		return nil
	}
	var out []string
	var cur []byte
	for i := 0; i <= len(command); i++ {
		if i == len(command) || command[i] == ' ' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = nil
			}
			continue
		}
		cur = append(cur, command[i])
	}
	return out
}

// parseEnv decodes the stored command_env column, a JSON object of
// environment variables for a stdio MCP server's child process.
func parseEnv(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var env map[string]string
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}
	return env
}
