package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/common"
)

// APIHandler serves the service-level endpoints: version, health and the
// JSON 404 fallback for unknown /api/ paths.
type APIHandler struct {
	logger  arbor.ILogger
	started time.Time
}

func NewAPIHandler() *APIHandler {
	return &APIHandler{
		logger:  common.GetLogger(),
		started: time.Now(),
	}
}

// VersionHandler reports the running build.
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "curo",
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// HealthHandler reports liveness along with process uptime.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "curo",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

// NotFoundHandler answers unknown /api/ paths with a JSON error instead of
// the default plain-text 404.
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug().Str("path", r.URL.Path).Msg("Unknown API path")
	WriteError(w, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
}
