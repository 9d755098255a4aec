package handlers

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
)

type NotesHandler struct {
	notes       NoteStore
	jobs        JobStore
	queue       JobQueue
	storagePath string
	maxUploadMB int
}

func NewNotesHandler(notes NoteStore, jobs JobStore, queue JobQueue, storagePath string, maxUploadMB int) *NotesHandler {
	return &NotesHandler{
		notes:       notes,
		jobs:        jobs,
		queue:       queue,
		storagePath: storagePath,
		maxUploadMB: maxUploadMB,
	}
}

// Upload accepts a multipart PDF plus a subject field, stores the file,
// creates the note row and enqueues extraction. A second upload for the same
// subject replaces the first.
func (h *NotesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.maxUploadMB) * 1024 * 1024
	if r.ContentLength > maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", "File size exceeds the upload limit", r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	subject, ok := models.ParseSubject(r.FormValue("subject"))
	if !ok {
		handleServiceError(w, r, &services.ValidationError{
			Fields: map[string]string{"subject": "must be Physics, Chemistry, Biology or English"},
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	// Magic byte check, the extraction pipeline only understands PDFs
	buf := make([]byte, 512)
	n, _ := file.Read(buf)
	buf = buf[:n]
	if !strings.HasPrefix(string(buf), "%PDF-") {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT", "Only PDF files are supported", r))
		return
	}
	file.Seek(0, io.SeekStart)

	deviceID := middleware.GetDeviceID(r.Context())
	relPath := filepath.Join("devices", deviceID.String(), uuid.New().String()+".pdf")
	fullPath := filepath.Join(h.storagePath, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}
	dst, err := os.Create(fullPath)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}
	size, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(fullPath)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to store file", r))
		return
	}

	note := &models.Note{
		DeviceID:  deviceID,
		Subject:   subject,
		Filename:  header.Filename,
		FilePath:  fullPath,
		SizeBytes: size,
	}
	if err := h.notes.Upsert(r.Context(), note); err != nil {
		os.Remove(fullPath)
		handleServiceError(w, r, err)
		return
	}

	job := &models.Job{
		DeviceID:    deviceID,
		Type:        "note-extraction",
		ReferenceID: note.ID,
		CreatedAt:   time.Now(),
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		log.Printf("✗ Failed to create extraction job for note %s: %v", note.ID, err)
		handleServiceError(w, r, err)
		return
	}
	jobBytes, _ := json.Marshal(job)
	h.queue.LPush(r.Context(), "queue:note-extraction", string(jobBytes))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"note":   note,
		"job_id": job.ID,
	})
}

func (h *NotesHandler) List(w http.ResponseWriter, r *http.Request) {
	deviceID := middleware.GetDeviceID(r.Context())

	notes, err := h.notes.List(r.Context(), deviceID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

// Get is the polling alternative to the WebSocket progress stream.
func (h *NotesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid note ID", r))
		return
	}

	note, err := h.notes.GetByID(r.Context(), id)
	if err != nil || note.DeviceID != middleware.GetDeviceID(r.Context()) {
		handleServiceError(w, r, &services.NotFoundError{Message: "Note not found"})
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *NotesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid note ID", r))
		return
	}

	deviceID := middleware.GetDeviceID(r.Context())
	filePath, err := h.notes.Delete(r.Context(), deviceID, id)
	if err != nil {
		handleServiceError(w, r, &services.NotFoundError{Message: "Note not found"})
		return
	}

	if filePath != "" {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			log.Printf("✗ Failed to remove note file %s: %v", filePath, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted"})
}
