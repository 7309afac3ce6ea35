// -----------------------------------------------------------------------
// Batch Handler - Batch submission, listing, and cancellation
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/interfaces"
	"github.com/ternarybob/curo/internal/models"
	"github.com/ternarybob/curo/internal/services/jobs"
)

// BatchHandler handles batch-related API requests
type BatchHandler struct {
	jobService *jobs.Service
	validate   *validator.Validate
	logger     arbor.ILogger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(jobService *jobs.Service, logger arbor.ILogger) *BatchHandler {
	return &BatchHandler{
		jobService: jobService,
		validate:   validator.New(),
		logger:     logger,
	}
}

type fileInput struct {
	FileName string `json:"file_name" validate:"required"`
	FileSize int64  `json:"file_size" validate:"gte=0"`
}

type submitBatchRequest struct {
	SessionID string      `json:"session_id"`
	Name      string      `json:"name"`
	Files     []fileInput `json:"files" validate:"required,min=1,dive"`
}

type addJobsRequest struct {
	Files []fileInput `json:"files" validate:"required,min=1,dive"`
}

func toJobInputs(files []fileInput) []models.JobInput {
	inputs := make([]models.JobInput, 0, len(files))
	for _, f := range files {
		inputs = append(inputs, models.JobInput{
			FileName: f.FileName,
			FileSize: f.FileSize,
		})
	}
	return inputs
}

// SubmitHandler creates a batch in the routed session and enqueues one job
// per file
// POST /api/batches
func (h *BatchHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	batch, submitted, err := h.jobService.Submit(r.Context(), req.SessionID, req.Name, toJobInputs(req.Files))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error().Err(err).Msg("Failed to submit batch")
		WriteError(w, http.StatusInternalServerError, "Failed to submit batch")
		return
	}

	h.logger.Info().
		Str("batch_id", batch.ID).
		Int("jobs", len(submitted)).
		Msg("Batch submitted")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"batch": batch,
		"jobs":  submitted,
	})
}

// ListBatchesHandler returns batches, optionally filtered to active ones
// GET /api/batches?active=true
func (h *BatchHandler) ListBatchesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var (
		batches []*models.Batch
		err     error
	)
	if r.URL.Query().Get("active") == "true" {
		batches, err = h.jobService.GetActiveBatches(r.Context())
	} else {
		batches, err = h.jobService.GetAllBatches(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list batches")
		WriteError(w, http.StatusInternalServerError, "Failed to list batches")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches":     batches,
		"total_count": len(batches),
	})
}

// BatchRouter dispatches /api/batches/{id} and its sub-resources
func (h *BatchHandler) BatchRouter(w http.ResponseWriter, r *http.Request) {
	// Path: /api/batches/{id}[/jobs|/cancel]
	batchID := PathSegment(r, 2)
	if batchID == "" {
		WriteError(w, http.StatusBadRequest, "Batch ID is required")
		return
	}

	switch PathSegment(r, 3) {
	case "":
		h.getBatch(w, r, batchID)
	case "jobs":
		switch r.Method {
		case http.MethodGet:
			h.listJobs(w, r, batchID)
		case http.MethodPost:
			h.addJobs(w, r, batchID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "cancel":
		h.cancelBatch(w, r, batchID)
	default:
		WriteError(w, http.StatusNotFound, "Unknown batch resource")
	}
}

func (h *BatchHandler) getBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	batch, err := h.jobService.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to get batch")
		WriteError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	WriteJSON(w, http.StatusOK, batch)
}

func (h *BatchHandler) listJobs(w http.ResponseWriter, r *http.Request, batchID string) {
	batchJobs, err := h.jobService.GetJobsForBatch(r.Context(), batchID)
	if err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to list jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":        batchJobs,
		"total_count": len(batchJobs),
	})
}

func (h *BatchHandler) addJobs(w http.ResponseWriter, r *http.Request, batchID string) {
	var req addJobsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, err := h.jobService.AddJobsToBatch(r.Context(), batchID, toJobInputs(req.Files))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to add jobs")
		WriteError(w, http.StatusInternalServerError, "Failed to add jobs")
		return
	}

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"jobs": added,
	})
}

func (h *BatchHandler) cancelBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.jobService.CancelBatch(r.Context(), batchID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Batch not found")
			return
		}
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to cancel batch")
		WriteError(w, http.StatusInternalServerError, "Failed to cancel batch")
		return
	}

	WriteSuccess(w, "Batch cancellation requested")
}
