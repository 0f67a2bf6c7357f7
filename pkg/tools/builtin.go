package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// echoParams and sqlQueryParams are reflected into function-calling JSON
// schemas at registration time instead of being hand-written as map
// literals, so adding a parameter only means touching the Go struct.
type echoParams struct {
	Text string `json:"text" jsonschema:"required,description=Text to echo back"`
}

type sqlQueryParams struct {
	Query string `json:"query" jsonschema:"required,description=A SELECT statement"`
}

// RegisterDefaultBuiltins installs the two reference built-ins named in
// SPEC_FULL.md §4.1a: echo (signature-only, no caller context) and
// sql_query (reads through the caller context's DB handle; no tenant filter
// is applied to the query).
func RegisterDefaultBuiltins(r *Registry) {
	r.RegisterBuiltinSimple("echo", "Echo the given text back. Useful for testing tool wiring.",
		mustParamSchema[echoParams](),
		echoBuiltin,
	)

	r.RegisterBuiltinWithContext("sql_query", "Run a read-only SELECT query against the service database.",
		mustParamSchema[sqlQueryParams](),
		sqlQueryBuiltin,
	)
}

// mustParamSchema reflects T's struct tags into the "parameters" shape the
// function-calling schema needs, grounded on the teacher's
// pkg/tool/functiontool/schema.go generateSchema. Panics on reflection
// failure since built-in parameter shapes are fixed at compile time and any
// failure here is a programming error, not a runtime condition.
func mustParamSchema[T any]() map[string]any {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("tools: marshal generated schema: %v", err))
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("tools: unmarshal generated schema: %v", err))
	}
	delete(raw, "$schema")
	delete(raw, "$id")

	result := map[string]any{"type": "object", "properties": raw["properties"]}
	if required, ok := raw["required"]; ok {
		result["required"] = required
	}
	return result
}

func echoBuiltin(_ context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	if text == "" {
		return "", fmt.Errorf("text parameter is required")
	}
	return text, nil
}

// sqlQueryBuiltin runs a caller-supplied SELECT against caller.DB as given;
// the query is not rewritten or filtered by tenant or user, so it sees every
// row that handle can read. It is deliberately conservative: only SELECT statements
// are permitted, and every row is rendered as a simple delimited line
// rather than JSON, since the result text is consumed by the model, not a
// machine.
func sqlQueryBuiltin(ctx context.Context, args map[string]any, caller CallerContext) (string, error) {
	if caller.DB == nil {
		return "", fmt.Errorf("sql_query: no database handle available for this caller")
	}
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("query parameter is required")
	}
	if !strings.HasPrefix(strings.ToUpper(query), "SELECT") {
		return "", fmt.Errorf("sql_query: only SELECT statements are permitted")
	}

	rows, err := caller.DB.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("sql_query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("sql_query: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, "\t"))
	sb.WriteByte('\n')

	const maxRows = 100
	n := 0
	for rows.Next() {
		if n >= maxRows {
			sb.WriteString(fmt.Sprintf("... truncated at %d rows\n", maxRows))
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("sql_query: %w", err)
		}
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = formatSQLValue(v)
		}
		sb.WriteString(strings.Join(parts, "\t"))
		sb.WriteByte('\n')
		n++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("sql_query: %w", err)
	}
	return sb.String(), nil
}

func formatSQLValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case sql.RawBytes:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
