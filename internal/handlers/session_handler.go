// -----------------------------------------------------------------------
// Session Handler - Session lifecycle, stats, and grouped views
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/services/sessions"
)

// SessionHandler handles session-related API requests
type SessionHandler struct {
	sessions *sessions.Manager
	logger   arbor.ILogger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessionManager *sessions.Manager, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{
		sessions: sessionManager,
		logger:   logger,
	}
}

type createSessionRequest struct {
	Name string `json:"name"`
}

// CreateSessionHandler creates a new session and makes it current
// POST /api/sessions
func (h *SessionHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req createSessionRequest
	if r.Body != nil {
		// Body is optional; an empty body creates an auto-named session
		json.NewDecoder(r.Body).Decode(&req)
	}

	session := h.sessions.CreateSession(strings.TrimSpace(req.Name))

	h.logger.Info().
		Str("session_id", session.ID).
		Str("name", session.Name).
		Msg("Session created")

	WriteJSON(w, http.StatusCreated, session)
}

// ListSessionsHandler returns all known sessions
// GET /api/sessions
func (h *SessionHandler) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.sessions.Sessions(),
	})
}

// SessionRouter dispatches /api/sessions/{id} and its sub-resources
func (h *SessionHandler) SessionRouter(w http.ResponseWriter, r *http.Request) {
	// Path: /api/sessions/{id}[/end|/stats]
	sessionID := PathSegment(r, 2)
	if sessionID == "" {
		WriteError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	switch PathSegment(r, 3) {
	case "":
		h.getSession(w, r, sessionID)
	case "end":
		h.endSession(w, r, sessionID)
	case "stats":
		h.sessionStats(w, r, sessionID)
	default:
		WriteError(w, http.StatusNotFound, "Unknown session resource")
	}
}

func (h *SessionHandler) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	session, err := h.sessions.GetSession(sessionID)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	WriteJSON(w, http.StatusOK, session)
}

func (h *SessionHandler) endSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.sessions.EndSession(sessionID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to end session")
		WriteError(w, http.StatusInternalServerError, "Failed to end session")
		return
	}

	WriteSuccess(w, "Session ended")
}

func (h *SessionHandler) sessionStats(w http.ResponseWriter, r *http.Request, sessionID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.sessions.SessionStats(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to compute session stats")
		WriteError(w, http.StatusInternalServerError, "Failed to compute session stats")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

// GroupedBatchesHandler returns batches clustered into time-proximity groups
// GET /api/sessions/grouped
func (h *SessionHandler) GroupedBatchesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	groups, err := h.sessions.GroupedBatches(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to group batches")
		WriteError(w, http.StatusInternalServerError, "Failed to group batches")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"groups": groups,
	})
}
