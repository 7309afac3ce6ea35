// -----------------------------------------------------------------------
// Maintenance Handler - On-demand retention cleanup
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/curo/internal/services/retention"
)

// MaintenanceHandler exposes the retention sweep for manual triggering
type MaintenanceHandler struct {
	retention  *retention.Service
	maxAgeDays int
	logger     arbor.ILogger
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(retentionService *retention.Service, maxAgeDays int, logger arbor.ILogger) *MaintenanceHandler {
	return &MaintenanceHandler{
		retention:  retentionService,
		maxAgeDays: maxAgeDays,
		logger:     logger,
	}
}

// CleanupHandler deletes finished jobs and batches older than the cutoff
// POST /api/maintenance/cleanup?days=7
func (h *MaintenanceHandler) CleanupHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	days := h.maxAgeDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			WriteError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	jobsDeleted, batchesDeleted, err := h.retention.CleanupOldJobs(r.Context(), days)
	if err != nil {
		h.logger.Error().Err(err).Msg("Cleanup failed")
		WriteError(w, http.StatusInternalServerError, "Cleanup failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "success",
		"jobs_deleted":    jobsDeleted,
		"batches_deleted": batchesDeleted,
		"older_than_days": days,
	})
}
