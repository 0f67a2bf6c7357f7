package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// MCPServerRecord is a user's configured remote MCP server (spec.md §4.4
// item 5, "Tool Catalogue Loader").
type MCPServerRecord struct {
	ID            string
	Owner         string
	Disabled      bool
	TransportKind string
	Command       string
	CommandEnv    string
	URL           string
}

// CustomToolRecord is a user's configured webhook tool.
type CustomToolRecord struct {
	ID             string
	Owner          string
	Enabled        bool
	Name           string
	Description    string
	ParametersJSON string
	URL            string
	Method         string
	HeadersJSON    string
	BodyTemplate   string
}

// MCPServersForOwner loads every non-disabled MCP server record for a
// user, for the Tool Catalogue Loader to discover and register at the
// start of a turn.
func MCPServersForOwner(ctx context.Context, db *sql.DB, owner string) ([]MCPServerRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner, disabled, transport_kind, command, command_env, url FROM mcp_servers WHERE owner = ? AND disabled = FALSE`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: load mcp servers: %w", err)
	}
	defer rows.Close()

	var out []MCPServerRecord
	for rows.Next() {
		var r MCPServerRecord
		if err := rows.Scan(&r.ID, &r.Owner, &r.Disabled, &r.TransportKind, &r.Command, &r.CommandEnv, &r.URL); err != nil {
			return nil, fmt.Errorf("persistence: scan mcp server row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: mcp server rows: %w", err)
	}
	return out, nil
}

// CustomToolsForOwner loads every enabled custom webhook tool record for a
// user.
func CustomToolsForOwner(ctx context.Context, db *sql.DB, owner string) ([]CustomToolRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner, enabled, name, description, parameters_json, url, method, headers_json, body_template
		 FROM custom_tools WHERE owner = ? AND enabled = TRUE`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("persistence: load custom tools: %w", err)
	}
	defer rows.Close()

	var out []CustomToolRecord
	for rows.Next() {
		var r CustomToolRecord
		if err := rows.Scan(&r.ID, &r.Owner, &r.Enabled, &r.Name, &r.Description, &r.ParametersJSON, &r.URL, &r.Method, &r.HeadersJSON, &r.BodyTemplate); err != nil {
			return nil, fmt.Errorf("persistence: scan custom tool row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("persistence: custom tool rows: %w", err)
	}
	return out, nil
}
