package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
)

// JobsHandler exposes job status for clients polling instead of listening on
// the WebSocket.
type JobsHandler struct {
	jobs JobStore
}

func NewJobsHandler(jobs JobStore) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil || job.DeviceID != middleware.GetDeviceID(r.Context()) {
		handleServiceError(w, r, &services.NotFoundError{Message: "Job not found"})
		return
	}

	writeJSON(w, http.StatusOK, job)
}
