package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/healthlens/healthlens/internal/analytics"
	"github.com/healthlens/healthlens/internal/catalog"
	"github.com/healthlens/healthlens/internal/config"
	"github.com/healthlens/healthlens/internal/query"
)

// analyticsRowLimit bounds how many rows an analytics report scans.
const analyticsRowLimit = 500_000

func handleDatasetAnalytics(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	if _, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, name); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOOKUP_FAILED", "could not load dataset", true, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SessionID: session.SessionID,
		SQL:       fmt.Sprintf("SELECT * FROM %q", name),
		RowLimit:  analyticsRowLimit,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ANALYTICS_FAILED", "could not read dataset", true, map[string]any{"details": err.Error()})
		return
	}

	switch r.PathValue("report") {
	case "summary":
		writeJSON(w, http.StatusOK, analytics.Summarize(result.Columns, result.Rows))
	case "outliers":
		writeJSON(w, http.StatusOK, map[string]any{"columns": analytics.DetectOutliers(result.Columns, result.Rows)})
	case "clusters":
		k := 2
		if raw := r.URL.Query().Get("k"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				writeError(r.Context(), w, http.StatusBadRequest, "INVALID_K", "k must be an integer", false, nil)
				return
			}
			k = parsed
		}
		report, err := analytics.KMeans(result.Columns, result.Rows, k)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "CLUSTERING_FAILED", err.Error(), false, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case "trend":
		yColumn := r.URL.Query().Get("y")
		if yColumn == "" {
			writeError(r.Context(), w, http.StatusBadRequest, "Y_COLUMN_REQUIRED", "query parameter y is required", false, nil)
			return
		}
		report, err := analytics.Trend(result.Columns, result.Rows, r.URL.Query().Get("x"), yColumn)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "TREND_FAILED", err.Error(), false, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	default:
		writeError(r.Context(), w, http.StatusNotFound, "UNKNOWN_REPORT", fmt.Sprintf("unknown analytics report %q", r.PathValue("report")), false, nil)
	}
}
