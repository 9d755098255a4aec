package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
)

type ResultsHandler struct {
	results ResultStore
}

func NewResultsHandler(results ResultStore) *ResultsHandler {
	return &ResultsHandler{results: results}
}

func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.List(r.Context(), middleware.GetDeviceID(r.Context()))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []*models.TestResult{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid result ID", r))
		return
	}

	result, err := h.results.GetByID(r.Context(), middleware.GetDeviceID(r.Context()), id)
	if err != nil {
		handleServiceError(w, r, &services.NotFoundError{Message: "Result not found"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
