// Package persistence implements the Persistence Writer (SPEC_FULL.md
// §4.8): one independent database transaction that writes the user message
// and conversation metadata before the stream starts, and another that runs
// after a streaming turn completes, writing the assistant message and usage
// record. The tenant quota increment is recorded by pkg/server through
// quota.Gate, not here.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	// Database drivers, registered by import side effect, grounded on
	// pkg/memory/session_service_sql.go.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// driverName maps a config-facing dialect name to the name
// database/sql.Open expects. Only sqlite differs: mattn/go-sqlite3
// registers itself as "sqlite3", not "sqlite".
func driverName(dialect string) string {
	if dialect == "sqlite" {
		return "sqlite3"
	}
	return dialect
}

// Open opens a *sql.DB for the given dialect/dsn and verifies the
// connection, mirroring the teacher's dialect-gated construction in
// NewSQLSessionService.
func Open(dialect, dsn string) (*sql.DB, error) {
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("persistence: unsupported dialect %q (supported: postgres, mysql, sqlite)", dialect)
	}
	db, err := sql.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", dialect, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("persistence: ping %s: %w", dialect, err)
	}
	return db, nil
}

// Conversation is the spec.md §3 Conversation record.
type Conversation struct {
	ID        string
	TenantID  string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is the spec.md §3 Message record. ToolCallsJSON /
// ToolResultsJSON hold the raw JSON the orchestrator produced, since the
// exact shape of a tool call/result is provider-defined and not worth
// normalizing into relational columns.
type Message struct {
	ID              int64
	ConversationID  string
	Role            string // "user", "assistant", "tool"
	Content         string
	ToolCallsJSON   string
	ToolResultsJSON string
	SequenceNum     int64
	CreatedAt       time.Time
}

// UsageRecord is the spec.md §3 Usage Record.
type UsageRecord struct {
	ID               int64
	ConversationID   string
	TenantID         string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	CreatedAt        time.Time
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id VARCHAR(255) PRIMARY KEY,
    tenant_id VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    title VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id VARCHAR(255) NOT NULL,
    role VARCHAR(50) NOT NULL,
    content TEXT NOT NULL,
    tool_calls_json TEXT NOT NULL DEFAULT '',
    tool_results_json TEXT NOT NULL DEFAULT '',
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sequence_num);

CREATE TABLE IF NOT EXISTS usage_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id VARCHAR(255) NOT NULL,
    tenant_id VARCHAR(255) NOT NULL,
    model VARCHAR(255) NOT NULL,
    prompt_tokens INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    total_tokens INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_tenant ON usage_records(tenant_id, created_at);

CREATE TABLE IF NOT EXISTS mcp_servers (
    id VARCHAR(255) PRIMARY KEY,
    owner VARCHAR(255) NOT NULL,
    disabled BOOLEAN NOT NULL DEFAULT FALSE,
    transport_kind VARCHAR(50) NOT NULL,
    command TEXT NOT NULL DEFAULT '',
    command_env TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mcp_servers_owner ON mcp_servers(owner);

CREATE TABLE IF NOT EXISTS custom_tools (
    id VARCHAR(255) PRIMARY KEY,
    owner VARCHAR(255) NOT NULL,
    enabled BOOLEAN NOT NULL DEFAULT TRUE,
    name VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    parameters_json TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL,
    method VARCHAR(10) NOT NULL DEFAULT 'POST',
    headers_json TEXT NOT NULL DEFAULT '',
    body_template TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_custom_tools_owner ON custom_tools(owner);
`

// Note: AUTOINCREMENT above is SQLite syntax. A MySQL deployment needs
// AUTO_INCREMENT and a PostgreSQL one needs SERIAL/GENERATED ALWAYS AS
// IDENTITY instead — same caveat the teacher leaves in
// createMessagesTableSQL's comment rather than maintaining three schema
// variants for a single-binary exercise.

// InitSchema creates the persistence schema if it doesn't already exist.
// Safe to call on every startup.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("persistence: init schema: %w", err)
	}
	return nil
}
