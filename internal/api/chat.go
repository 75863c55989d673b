package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/healthlens/healthlens/internal/catalog"
	"github.com/healthlens/healthlens/internal/config"
	"github.com/healthlens/healthlens/internal/nl2sql"
	"github.com/healthlens/healthlens/internal/observability"
	"github.com/healthlens/healthlens/internal/present"
	"github.com/healthlens/healthlens/internal/query"
	"github.com/healthlens/healthlens/internal/sqlguard"
)

type chatRequest struct {
	Question string `json:"question"`
	RowLimit int    `json:"row_limit"`
}

type chatResponse struct {
	Answer   present.Rendering `json:"answer"`
	SQL      string            `json:"sql"`
	Provider string            `json:"provider,omitempty"`
	Model    string            `json:"model,omitempty"`
	Stats    map[string]any    `json:"stats"`
}

type rawQueryRequest struct {
	SQL      string `json:"sql"`
	RowLimit int    `json:"row_limit"`
}

type rawQueryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleChat(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request chatRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = cfg.Query.DefaultRowLimit
	}

	tables, err := deps.Introspector.Describe(r.Context(), session.SessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FAILED", "could not describe session datasets", true, map[string]any{"details": err.Error()})
		return
	}
	if len(tables) == 0 {
		recordTurn(deps, r, session.SessionID, request.Question, "", catalog.QueryStatusNoData, 0, 0, "no datasets loaded")
		observability.ObserveChatTurn("no_data")
		writeError(r.Context(), w, http.StatusBadRequest, "NO_DATA_LOADED", "upload a dataset before asking questions", false, nil)
		return
	}

	translateStart := time.Now()
	translation, err := deps.Translator.Translate(r.Context(), nl2sql.Request{
		SessionID: session.SessionID,
		Question:  request.Question,
		Tables:    tables,
		RowLimit:  rowLimit,
	})
	observability.ObserveTranslation(time.Since(translateStart))
	if err != nil {
		if errors.Is(err, nl2sql.ErrNoDataLoaded) {
			recordTurn(deps, r, session.SessionID, request.Question, "", catalog.QueryStatusNoData, 0, 0, err.Error())
			observability.ObserveChatTurn("no_data")
			writeError(r.Context(), w, http.StatusBadRequest, "NO_DATA_LOADED", "upload a dataset before asking questions", false, nil)
			return
		}
		recordTurn(deps, r, session.SessionID, request.Question, "", catalog.QueryStatusTranslationFailed, 0, 0, err.Error())
		observability.ObserveChatTurn("translation_failed")
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATION_FAILED", "could not translate the question to SQL", true, map[string]any{"details": err.Error()})
		return
	}

	if err := sqlguard.Check(translation.SQL, tables); err != nil {
		var unsafeErr *sqlguard.UnsafeQueryError
		reason := err.Error()
		if errors.As(err, &unsafeErr) {
			reason = unsafeErr.Reason
		}
		recordTurn(deps, r, session.SessionID, request.Question, translation.SQL, catalog.QueryStatusUnsafe, 0, 0, reason)
		observability.IncrementUnsafeQuery()
		observability.ObserveChatTurn("unsafe")
		writeError(r.Context(), w, http.StatusBadRequest, "UNSAFE_QUERY", "the generated SQL was rejected", false, map[string]any{"reason": reason, "sql": translation.SQL})
		return
	}

	result, err := executeWithTimeout(cfg, deps, r, query.Request{
		SessionID: session.SessionID,
		SQL:       translation.SQL,
		RowLimit:  rowLimit,
	})
	if err != nil {
		recordTurn(deps, r, session.SessionID, request.Question, translation.SQL, catalog.QueryStatusExecutionFailed, 0, 0, err.Error())
		observability.ObserveChatTurn("execution_failed")
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "the generated SQL failed to execute", false, map[string]any{"details": err.Error(), "sql": translation.SQL})
		return
	}

	observability.ObserveQueryDuration(result.Duration)
	observability.ObserveChatTurn("ok")
	recordTurn(deps, r, session.SessionID, request.Question, translation.SQL, catalog.QueryStatusOK, int64(len(result.Rows)), result.Duration.Milliseconds(), "")

	writeJSON(w, http.StatusOK, chatResponse{
		Answer:   present.Render(request.Question, result),
		SQL:      translation.SQL,
		Provider: translation.Provider,
		Model:    translation.Model,
		Stats: map[string]any{
			"row_count":   len(result.Rows),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
}

func handleRawQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request rawQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	rowLimit := request.RowLimit
	if rowLimit <= 0 {
		rowLimit = cfg.Query.DefaultRowLimit
	}

	tables, err := deps.Introspector.Describe(r.Context(), session.SessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SCHEMA_FAILED", "could not describe session datasets", true, map[string]any{"details": err.Error()})
		return
	}

	if err := sqlguard.Check(request.SQL, tables); err != nil {
		var unsafeErr *sqlguard.UnsafeQueryError
		reason := err.Error()
		if errors.As(err, &unsafeErr) {
			reason = unsafeErr.Reason
		}
		recordTurn(deps, r, session.SessionID, "", request.SQL, catalog.QueryStatusUnsafe, 0, 0, reason)
		observability.IncrementUnsafeQuery()
		writeError(r.Context(), w, http.StatusBadRequest, "UNSAFE_QUERY", "the SQL statement was rejected", false, map[string]any{"reason": reason})
		return
	}

	result, err := executeWithTimeout(cfg, deps, r, query.Request{
		SessionID: session.SessionID,
		SQL:       request.SQL,
		RowLimit:  rowLimit,
	})
	if err != nil {
		recordTurn(deps, r, session.SessionID, "", request.SQL, catalog.QueryStatusExecutionFailed, 0, 0, err.Error())
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "the SQL statement failed to execute", false, map[string]any{"details": err.Error()})
		return
	}

	observability.ObserveQueryDuration(result.Duration)
	recordTurn(deps, r, session.SessionID, "", request.SQL, catalog.QueryStatusOK, int64(len(result.Rows)), result.Duration.Milliseconds(), "")

	writeJSON(w, http.StatusOK, rawQueryResponse{
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats: map[string]any{
			"row_count":   len(result.Rows),
			"duration_ms": result.Duration.Milliseconds(),
		},
	})
}

func executeWithTimeout(cfg config.Config, deps Dependencies, r *http.Request, request query.Request) (query.Result, error) {
	ctx := r.Context()
	if cfg.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Query.Timeout)
		defer cancel()
	}
	return deps.QueryEngine.Execute(ctx, request)
}

// recordTurn writes query history best effort; a full history table is not
// worth failing the request over.
func recordTurn(deps Dependencies, r *http.Request, sessionID, question, sqlText, status string, rowCount, durationMs int64, errorMessage string) {
	_, err := deps.Catalog.InsertQueryRecord(r.Context(), catalog.InsertQueryRecordInput{
		SessionID:    sessionID,
		Question:     question,
		SQL:          sqlText,
		Status:       status,
		RowCount:     rowCount,
		DurationMs:   durationMs,
		ErrorMessage: errorMessage,
	})
	if err != nil && deps.Logger != nil {
		deps.Logger.Warn("record query history", "session_id", sessionID, "error", err)
	}
}
