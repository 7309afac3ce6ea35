// -----------------------------------------------------------------------
// Job Handler - Individual job lookup and cancellation
// -----------------------------------------------------------------------

package handlers

import (
	"errors"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/services/jobs"
)

// JobHandler handles job-related API requests
type JobHandler struct {
	jobService *jobs.Service
	logger     arbor.ILogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobService *jobs.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		jobService: jobService,
		logger:     logger,
	}
}

// JobRouter dispatches /api/jobs/{id} and its sub-resources
func (h *JobHandler) JobRouter(w http.ResponseWriter, r *http.Request) {
	// Path: /api/jobs/{id}[/cancel]
	jobID := PathSegment(r, 2)
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	switch PathSegment(r, 3) {
	case "":
		h.getJob(w, r, jobID)
	case "cancel":
		h.cancelJob(w, r, jobID)
	default:
		WriteError(w, http.StatusNotFound, "Unknown job resource")
	}
}

func (h *JobHandler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	job, err := h.jobService.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

func (h *JobHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.jobService.CancelJob(r.Context(), jobID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to cancel job")
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteSuccess(w, "Job cancellation requested")
}
