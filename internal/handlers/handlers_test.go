package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/raeesrind/GT-MCQS-Creator/internal/mcq"
	"github.com/raeesrind/GT-MCQS-Creator/internal/middleware"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
	"github.com/raeesrind/GT-MCQS-Creator/internal/store"
)

// ─── Fakes ───

type noteKey struct {
	device  uuid.UUID
	subject models.Subject
}

// fakeNoteStore mirrors the NoteStore contract: at most one note per
// (device, subject), replaced on a repeat upsert.
type fakeNoteStore struct {
	notes map[noteKey]*models.Note
}

func (f *fakeNoteStore) Upsert(ctx context.Context, n *models.Note) error {
	n.ID = uuid.New()
	n.Status = "pending"
	if f.notes == nil {
		f.notes = map[noteKey]*models.Note{}
	}
	f.notes[noteKey{n.DeviceID, n.Subject}] = n
	return nil
}

func (f *fakeNoteStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error) {
	for _, n := range f.notes {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, errors.New("no rows")
}

func (f *fakeNoteStore) List(ctx context.Context, deviceID uuid.UUID) ([]*models.Note, error) {
	var out []*models.Note
	for _, n := range f.notes {
		if n.DeviceID == deviceID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNoteStore) ListCompleted(ctx context.Context, deviceID uuid.UUID) (map[models.Subject]string, error) {
	out := map[models.Subject]string{}
	for _, n := range f.notes {
		if n.DeviceID == deviceID && n.Status == "completed" && n.ExtractedText != nil {
			out[n.Subject] = *n.ExtractedText
		}
	}
	return out, nil
}

func (f *fakeNoteStore) Delete(ctx context.Context, deviceID, id uuid.UUID) (string, error) {
	for key, n := range f.notes {
		if n.ID == id && n.DeviceID == deviceID {
			delete(f.notes, key)
			return n.FilePath, nil
		}
	}
	return "", errors.New("no rows")
}

type fakeJobStore struct {
	created []*models.Job
}

func (f *fakeJobStore) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = "pending"
	f.created = append(f.created, j)
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	for _, j := range f.created {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, errors.New("no rows")
}

type fakeQueue struct {
	pushed []string
}

func (f *fakeQueue) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.pushed = append(f.pushed, key)
	return redis.NewIntCmd(ctx)
}

type fakeSessionStore struct {
	session *models.TestSession
}

func (f *fakeSessionStore) Get(ctx context.Context, deviceID uuid.UUID) (*models.TestSession, error) {
	if f.session == nil {
		return nil, store.ErrNoActiveSession
	}
	return f.session, nil
}

func (f *fakeSessionStore) SaveAnswer(ctx context.Context, deviceID uuid.UUID, questionIndex int, selected string) error {
	if f.session == nil {
		return store.ErrNoActiveSession
	}
	f.session.Answers[questionIndex] = selected
	return nil
}

func (f *fakeSessionStore) Clear(ctx context.Context, deviceID uuid.UUID) error {
	f.session = nil
	return nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return resp
}

// ─── Error mapping ───

func TestHandleServiceError_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"insufficient questions", &mcq.InsufficientQuestionsError{Got: 40, Need: 90}, http.StatusUnprocessableEntity, "INSUFFICIENT_QUESTIONS"},
		{"validation", &services.ValidationError{Fields: map[string]string{"subject": "required"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", &services.NotFoundError{Message: "Note not found"}, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", &services.ConflictError{Message: "Already exists"}, http.StatusConflict, "CONFLICT"},
		{"unauthorized", &services.UnauthorizedError{Message: "Bad token"}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"rate limited", &services.RateLimitError{Message: "Slow down"}, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"external service", &services.ExternalServiceError{Service: "question generation", Err: errors.New("boom")}, http.StatusBadGateway, "EXTERNAL_SERVICE"},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Request-ID", "req-123")
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			resp := decodeError(t, rr)
			if resp.Error.Code != tc.wantCode {
				t.Errorf("Expected code %q, got %q", tc.wantCode, resp.Error.Code)
			}
			if resp.Error.RequestID != "req-123" {
				t.Errorf("Expected request id echoed, got %q", resp.Error.RequestID)
			}
		})
	}
}

func TestHandleServiceError_WrappedInsufficient(t *testing.T) {
	err := fmt.Errorf("generation failed: %w", &mcq.InsufficientQuestionsError{Got: 12, Need: 90})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/grand", nil)
	rr := httptest.NewRecorder()
	handleServiceError(rr, req, err)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for wrapped insufficient-questions error, got %d", rr.Code)
	}
}

// ─── Session handler ───

func TestIssueToken(t *testing.T) {
	auth := middleware.NewDeviceAuth("test-secret")
	h := NewSessionHandler(auth)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/token", nil)
	rr := httptest.NewRecorder()
	h.IssueToken(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	var resp struct {
		Token    string `json:"token"`
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("Expected a token in the response")
	}

	parsed, err := auth.ParseToken(resp.Token)
	if err != nil {
		t.Fatalf("Issued token does not parse: %v", err)
	}
	if parsed.String() != resp.DeviceID {
		t.Errorf("Token device id %s does not match response %s", parsed, resp.DeviceID)
	}
}

// ─── Notes handler validation ───

func multipartUpload(t *testing.T, subject, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if subject != "" {
		w.WriteField("subject", subject)
	}
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(content)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestNotesUpload_InvalidSubject(t *testing.T) {
	h := NewNotesHandler(nil, nil, nil, t.TempDir(), 25)

	body, contentType := multipartUpload(t, "Mathematics", "notes.pdf", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %q", resp.Error.Code)
	}
	if _, ok := resp.Error.Fields["subject"]; !ok {
		t.Error("Expected a subject field error")
	}
}

func TestNotesUpload_MissingFile(t *testing.T) {
	h := NewNotesHandler(nil, nil, nil, t.TempDir(), 25)

	body, contentType := multipartUpload(t, "Physics", "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
}

func TestNotesUpload_NotAPDF(t *testing.T) {
	h := NewNotesHandler(nil, nil, nil, t.TempDir(), 25)

	body, contentType := multipartUpload(t, "Chemistry", "notes.pdf", []byte("just plain text, no pdf header"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("Expected 415, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Code != "UNSUPPORTED_FORMAT" {
		t.Errorf("Expected UNSUPPORTED_FORMAT, got %q", resp.Error.Code)
	}
}

func TestNotesUpload_TooLarge(t *testing.T) {
	h := NewNotesHandler(nil, nil, nil, t.TempDir(), 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", strings.NewReader(""))
	req.ContentLength = 2 * 1024 * 1024
	rr := httptest.NewRecorder()

	h.Upload(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", rr.Code)
	}
}

func TestNotesUpload_ReplacesSameSubject(t *testing.T) {
	notes := &fakeNoteStore{}
	jobs := &fakeJobStore{}
	queue := &fakeQueue{}
	h := NewNotesHandler(notes, jobs, queue, t.TempDir(), 25)

	upload := func(subject, filename string) *httptest.ResponseRecorder {
		body, contentType := multipartUpload(t, subject, filename, []byte("%PDF-1.4 fake"))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/notes", body)
		req.Header.Set("Content-Type", contentType)
		rr := httptest.NewRecorder()
		h.Upload(rr, req)
		return rr
	}

	if rr := upload("Physics", "week1.pdf"); rr.Code != http.StatusAccepted {
		t.Fatalf("First upload: expected 202, got %d", rr.Code)
	}
	if rr := upload("Physics", "week2.pdf"); rr.Code != http.StatusAccepted {
		t.Fatalf("Second upload: expected 202, got %d", rr.Code)
	}

	if len(notes.notes) != 1 {
		t.Fatalf("Expected one note after re-uploading the same subject, got %d", len(notes.notes))
	}
	for _, n := range notes.notes {
		if n.Filename != "week2.pdf" {
			t.Errorf("Expected the second upload to survive, got %q", n.Filename)
		}
	}

	if rr := upload("Chemistry", "chem.pdf"); rr.Code != http.StatusAccepted {
		t.Fatalf("Chemistry upload: expected 202, got %d", rr.Code)
	}
	if len(notes.notes) != 2 {
		t.Errorf("Expected a second note for a different subject, got %d", len(notes.notes))
	}

	if len(jobs.created) != 3 {
		t.Errorf("Expected an extraction job per upload, got %d", len(jobs.created))
	}
	for _, key := range queue.pushed {
		if key != "queue:note-extraction" {
			t.Errorf("Job pushed onto wrong queue: %q", key)
		}
	}
}

func TestNotesGet_UnknownNote(t *testing.T) {
	h := NewNotesHandler(&fakeNoteStore{}, &fakeJobStore{}, &fakeQueue{}, t.TempDir(), 25)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notes/"+id.String(), nil)
	req.Header.Set("X-Request-ID", "req-9")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	h.Get(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %q", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-9" {
		t.Errorf("Expected request id echoed, got %q", resp.Error.RequestID)
	}
}

// ─── Tests handler validation ───

func TestStartPractice_InvalidBody(t *testing.T) {
	h := NewTestsHandler(nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/practice", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.StartPractice(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
}

func TestStartPractice_UnknownSubject(t *testing.T) {
	h := NewTestsHandler(nil, nil, nil, nil, nil, nil)

	body, _ := json.Marshal(models.StartPracticeRequest{Subject: "History"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tests/practice", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.StartPractice(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if _, ok := resp.Error.Fields["subject"]; !ok {
		t.Error("Expected a subject field error")
	}
}

func TestGetActive_NoSession(t *testing.T) {
	h := NewTestsHandler(nil, &fakeSessionStore{}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tests/active", nil)
	rr := httptest.NewRecorder()
	h.GetActive(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rr.Code)
	}
	resp := decodeError(t, rr)
	if resp.Error.Code != "NOT_FOUND" {
		t.Errorf("Expected NOT_FOUND, got %q", resp.Error.Code)
	}
}

func TestSaveAnswer_InvalidBody(t *testing.T) {
	h := NewTestsHandler(nil, nil, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/tests/active/answers", strings.NewReader("nope"))
	rr := httptest.NewRecorder()
	h.SaveAnswer(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
}
