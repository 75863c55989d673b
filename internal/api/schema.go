package api

import (
	"net/http"
	"strconv"
	"time"
)

type historyEntry struct {
	QueryID      int64     `json:"query_id"`
	Question     string    `json:"question,omitempty"`
	SQL          string    `json:"sql"`
	Status       string    `json:"status"`
	RowCount     int64     `json:"row_count"`
	DurationMs   int64     `json:"duration_ms"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	tables, err := deps.Introspector.Describe(r.Context(), session.SessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FAILED", "could not describe session datasets", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", false, nil)
			return
		}
		limit = parsed
	}

	records, err := deps.Catalog.ListQueryHistory(r.Context(), session.SessionID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_FAILED", "could not list query history", true, map[string]any{"details": err.Error()})
		return
	}
	entries := make([]historyEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, historyEntry{
			QueryID:      record.QueryID,
			Question:     record.Question,
			SQL:          record.SQL,
			Status:       record.Status,
			RowCount:     record.RowCount,
			DurationMs:   record.DurationMs,
			ErrorMessage: record.ErrorMessage,
			CreatedAt:    record.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}
