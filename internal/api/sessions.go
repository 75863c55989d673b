package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthlens/healthlens/internal/auth"
	"github.com/healthlens/healthlens/internal/catalog"
)

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	Owner      string    `json:"owner,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	Datasets   int       `json:"datasets"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	owner := ""
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		owner = identity.Owner
	}

	session, err := deps.Catalog.CreateSession(r.Context(), catalog.CreateSessionInput{
		SessionID: uuid.NewString(),
		Owner:     owner,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_CREATE_FAILED", "could not create session", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:  session.SessionID,
		Owner:      session.Owner,
		CreatedAt:  session.CreatedAt,
		LastSeenAt: session.LastSeenAt,
	})
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	session, err := deps.Catalog.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_LOOKUP_FAILED", "could not load session", true, map[string]any{"details": err.Error()})
		return
	}
	count, err := deps.Catalog.CountDatasets(r.Context(), sessionID)
	if err != nil {
		count = 0
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:  session.SessionID,
		Owner:      session.Owner,
		CreatedAt:  session.CreatedAt,
		LastSeenAt: session.LastSeenAt,
		Datasets:   count,
	})
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, "admin"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	sessionID := strings.TrimSpace(r.PathValue("id"))
	// Archive keys live only on the dataset rows the delete cascades away,
	// so collect them first.
	var archiveKeys []string
	if deps.Archive != nil {
		if datasets, err := deps.Catalog.ListDatasets(r.Context(), sessionID); err == nil {
			for _, dataset := range datasets {
				if dataset.ArchivePath != "" {
					archiveKeys = append(archiveKeys, dataset.ArchivePath)
				}
			}
		}
	}
	deleted, err := deps.Catalog.DeleteSession(r.Context(), sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_DELETE_FAILED", "could not delete session", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", false, nil)
		return
	}
	if deps.Warehouse != nil {
		if err := deps.Warehouse.DropSession(sessionID); err != nil && deps.Logger != nil {
			deps.Logger.Warn("drop session warehouse", "session_id", sessionID, "error", err)
		}
	}
	for _, key := range archiveKeys {
		deleteArchivedObject(deps, r, sessionID, key)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "session_id": sessionID})
}
