package nl2sql

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = "You convert natural language questions about tabular health data into a single DuckDB SQL query. " +
	"DuckDB uses PostgreSQL-like SQL syntax. " +
	"Return ONLY SQL. No markdown, no explanation."

// BuildPrompts renders the system and user prompts for a translation
// request. It fails with ErrNoDataLoaded when the session has no tables.
func BuildPrompts(req Request) (string, string, error) {
	if len(req.Tables) == 0 {
		return "", "", ErrNoDataLoaded
	}

	tablesJSON, err := json.Marshal(req.Tables)
	if err != nil {
		return "", "", fmt.Errorf("marshal table context: %w", err)
	}

	rowLimit := req.RowLimit
	if rowLimit <= 0 {
		rowLimit = 200
	}

	userPrompt := fmt.Sprintf(
		"Loaded tables with column types and sample values (JSON):\n%s\n\nUser question:\n%s\n\nRules:\n- Use only the listed tables and columns.\n- The query must be a single read-only SELECT (WITH clauses are allowed).\n- Prefer explicit column lists over SELECT *.\n- Add LIMIT %d unless the question asks otherwise.\n- Output a single SQL query only.",
		string(tablesJSON),
		strings.TrimSpace(req.Question),
		rowLimit,
	)

	return systemPrompt, userPrompt, nil
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
