package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
	"github.com/raeesrind/GT-MCQS-Creator/internal/scoring"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
	"github.com/raeesrind/GT-MCQS-Creator/internal/store"
)

type TestsHandler struct {
	notes    NoteStore
	sessions SessionStore
	results  ResultStore
	jobs     JobStore
	queue    JobQueue
	engine   *scoring.Engine
}

func NewTestsHandler(
	notes NoteStore,
	sessions SessionStore,
	results ResultStore,
	jobs JobStore,
	queue JobQueue,
	engine *scoring.Engine,
) *TestsHandler {
	return &TestsHandler{
		notes:    notes,
		sessions: sessions,
		results:  results,
		jobs:     jobs,
		queue:    queue,
		engine:   engine,
	}
}

// StartPractice enqueues generation of a 20-question single-subject test.
// The subject must have a fully extracted note.
func (h *TestsHandler) StartPractice(w http.ResponseWriter, r *http.Request) {
	var req models.StartPracticeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	subject, ok := models.ParseSubject(req.Subject)
	if !ok {
		handleServiceError(w, r, &services.ValidationError{
			Fields: map[string]string{"subject": "must be Physics, Chemistry, Biology or English"},
		})
		return
	}

	deviceID := middleware.GetDeviceID(r.Context())
	notes, err := h.notes.ListCompleted(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if _, ok := notes[subject]; !ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("NO_NOTES",
			fmt.Sprintf("No extracted notes for %s. Upload notes first.", subject), r))
		return
	}

	h.enqueueGeneration(w, r, deviceID, models.TestTypePractice, subject)
}

// StartGrand enqueues generation of a full mock exam: 30 questions each for
// Physics, Chemistry and Biology, plus 10 English when English notes exist.
func (h *TestsHandler) StartGrand(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	notes, err := h.notes.ListCompleted(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	missing := map[string]string{}
	for _, subject := range models.GrandTestSubjects {
		if _, ok := notes[subject]; !ok {
			missing[string(subject)] = "extracted notes required"
		}
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorRespWithFields("NO_NOTES",
			"Grand test requires Physics, Chemistry and Biology notes", missing, r))
		return
	}

	h.enqueueGeneration(w, r, deviceID, models.TestTypeGrand, "")
}

func (h *TestsHandler) enqueueGeneration(w http.ResponseWriter, r *http.Request, deviceID uuid.UUID, testType models.TestType, subject models.Subject) {
	config, _ := json.Marshal(map[string]interface{}{
		"test_type": testType,
		"subject":   subject,
	})

	job := &models.Job{
		DeviceID:   deviceID,
		Type:       "test-generation",
		ConfigJSON: config,
		CreatedAt:  time.Now(),
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		log.Printf("✗ Failed to create generation job: %v", err)
		handleServiceError(w, r, err)
		return
	}

	jobBytes, _ := json.Marshal(job)
	h.queue.LPush(r.Context(), "queue:test-generation", string(jobBytes))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    job.ID,
		"test_type": testType,
	})
}

func (h *TestsHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), middleware.GetDeviceID(r.Context()))
	if err != nil {
		handleServiceError(w, r, sessionError(err))
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// sessionError maps the session store's sentinel onto the service error
// taxonomy so handleServiceError renders it as a 404.
func sessionError(err error) error {
	if errors.Is(err, store.ErrNoActiveSession) {
		return &services.NotFoundError{Message: "No active test session"}
	}
	return err
}

// SaveAnswer records one selected option in the active session.
func (h *TestsHandler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SaveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	deviceID := middleware.GetDeviceID(r.Context())
	session, err := h.sessions.Get(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, r, sessionError(err))
		return
	}

	if req.QuestionIndex < 0 || req.QuestionIndex >= len(session.Questions) {
		handleServiceError(w, r, &services.ValidationError{
			Fields: map[string]string{"question_index": "out of range"},
		})
		return
	}

	if err := h.sessions.SaveAnswer(r.Context(), deviceID, req.QuestionIndex, req.SelectedOption); err != nil {
		handleServiceError(w, r, sessionError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Answer saved"})
}

// Submit scores the active session, appends the result to history and clears
// the session. Weak-topic suggestion failures degrade the result rather than
// failing the submit.
func (h *TestsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())
	session, err := h.sessions.Get(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, r, sessionError(err))
		return
	}

	result, degraded := h.engine.Score(r.Context(), session)

	if err := h.results.Append(r.Context(), result); err != nil {
		handleServiceError(w, r, err)
		return
	}
	if err := h.sessions.Clear(r.Context(), deviceID); err != nil {
		log.Printf("✗ Failed to clear session for device %s: %v", deviceID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":                  result,
		"weakest_topics_degraded": degraded,
	})
}

// Abandon discards the active session without scoring it.
func (h *TestsHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.Context(), middleware.GetDeviceID(r.Context())); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Test abandoned"})
}
