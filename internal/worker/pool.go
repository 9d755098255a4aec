package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/raeesrind/GT-MCQS-Creator/internal/mcq"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
	"github.com/raeesrind/GT-MCQS-Creator/internal/services"
	"github.com/raeesrind/GT-MCQS-Creator/internal/store"
)

// Question counts requested per test.
const (
	practiceQuestionCount = 20
	grandCoreCount        = 30
	grandEnglishCount     = 10
)

// Collaborator boundaries, satisfied by the concrete services and repos.
// Tests substitute fakes so job processing can run without Postgres or
// a live Gemini client.

type mcqGenerator interface {
	GenerateMCQBlocks(ctx context.Context, notes map[models.Subject]string, counts map[models.Subject]int) ([]mcq.Block, error)
	ExtractTextFromImage(ctx context.Context, image []byte) (string, error)
	PublishUpdate(ctx context.Context, deviceID uuid.UUID, msg models.WSMessage)
}

type pdfExtractor interface {
	ExtractTextLayer(path string) ([]string, error)
	RasterizePages(ctx context.Context, path string) ([][]byte, error)
}

type jobStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	UpdateReference(ctx context.Context, id, referenceID uuid.UUID) error
}

type noteStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Note, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetExtracted(ctx context.Context, id uuid.UUID, text string) error
	ListCompleted(ctx context.Context, deviceID uuid.UUID) (map[models.Subject]string, error)
}

type sessionStore interface {
	Save(ctx context.Context, s *models.TestSession) error
}

type Pool struct {
	redis       *redis.Client
	gemini      mcqGenerator
	extract     pdfExtractor
	parser      *mcq.Parser
	jobRepo     jobStore
	noteRepo    noteStore
	sessionRepo sessionStore
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	gemini *services.GeminiService,
	extract *services.PDFExtractService,
	jobRepo *store.JobRepo,
	noteRepo *store.NoteRepo,
	sessionRepo *store.SessionRepo,
	workerCount int,
) *Pool {
	parser := mcq.NewParser(mcq.WithWarnFunc(func(format string, args ...interface{}) {
		log.Printf("mcq parser: "+format, args...)
	}))

	return &Pool{
		redis:       redisClient,
		gemini:      gemini,
		extract:     extract,
		parser:      parser,
		jobRepo:     jobRepo,
		noteRepo:    noteRepo,
		sessionRepo: sessionRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{
		"queue:note-extraction",
		"queue:test-generation",
	}

	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}

	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)

		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")
		p.gemini.PublishUpdate(ctx, job.DeviceID, models.WSMessage{
			Type: "progress",
			Payload: models.ProgressUpdate{
				JobID:   job.ID,
				Percent: 0,
				Status:  "processing",
			},
		})

		var processErr error
		switch job.Type {
		case "note-extraction":
			processErr = p.processExtraction(ctx, &job)
		case "test-generation":
			processErr = p.processGeneration(ctx, &job)
		default:
			processErr = fmt.Errorf("unknown job type: %s", job.Type)
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		p.redis.Del(ctx, lockKey)
	}
}

// processExtraction turns an uploaded note PDF into extracted text. The
// embedded text layer is used when present; scanned or handwritten notes go
// through rasterization and per-page OCR. A failure on any page discards the
// whole extraction, the note is never saved partially extracted.
func (p *Pool) processExtraction(ctx context.Context, job *models.Job) error {
	note, err := p.noteRepo.GetByID(ctx, job.ReferenceID)
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}

	p.noteRepo.UpdateStatus(ctx, note.ID, "processing")

	pages, err := p.extract.ExtractTextLayer(note.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}

	if services.HasTextLayer(pages) {
		text := strings.TrimSpace(strings.Join(pages, "\n\n"))
		if err := p.noteRepo.SetExtracted(ctx, note.ID, text); err != nil {
			return fmt.Errorf("failed to save extracted text: %w", err)
		}
		log.Printf("Extracted text layer for note %s (%d pages, %d chars)", note.ID, len(pages), len(text))
		return nil
	}

	// No text layer: rasterize and OCR each page
	log.Printf("Note %s has no text layer, falling back to OCR", note.ID)
	images, err := p.extract.RasterizePages(ctx, note.FilePath)
	if err != nil {
		return fmt.Errorf("failed to rasterize pdf: %w", err)
	}

	texts, err := p.ocrPages(ctx, job, images)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(strings.Join(texts, "\n\n"))
	if text == "" {
		return fmt.Errorf("ocr produced no text for note %s", note.ID)
	}

	if err := p.noteRepo.SetExtracted(ctx, note.ID, text); err != nil {
		return fmt.Errorf("failed to save extracted text: %w", err)
	}
	log.Printf("OCR extracted note %s (%d pages, %d chars)", note.ID, len(images), len(text))
	return nil
}

// ocrPages transcribes every page concurrently. The Gemini token bucket
// bounds how many calls are actually in flight; results are reassembled in
// page order regardless of completion order.
func (p *Pool) ocrPages(ctx context.Context, job *models.Job, images [][]byte) ([]string, error) {
	texts := make([]string, len(images))
	errs := make([]error, len(images))
	var done atomic.Int64

	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func(i int, img []byte) {
			defer wg.Done()
			text, err := p.gemini.ExtractTextFromImage(ctx, img)
			if err != nil {
				errs[i] = err
				return
			}
			texts[i] = text

			percent := int(done.Add(1)) * 100 / len(images)
			p.gemini.PublishUpdate(ctx, job.DeviceID, models.WSMessage{
				Type: "progress",
				Payload: models.ProgressUpdate{
					JobID:   job.ID,
					Percent: percent,
					Status:  "extracting",
				},
			})
		}(i, img)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("ocr failed on page %d: %w", i+1, err)
		}
	}
	return texts, nil
}

type generationConfig struct {
	TestType models.TestType `json:"test_type"`
	Subject  models.Subject  `json:"subject,omitempty"`
}

// processGeneration builds a test session from the device's extracted notes:
// generate raw blocks per subject, parse them tolerantly, then assemble and
// save the session. A yield below the test's minimum fails the job
// permanently, no session is created.
func (p *Pool) processGeneration(ctx context.Context, job *models.Job) error {
	var config generationConfig
	if err := json.Unmarshal(job.ConfigJSON, &config); err != nil {
		return fmt.Errorf("invalid job config: %w", err)
	}

	notes, err := p.noteRepo.ListCompleted(ctx, job.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to load notes: %w", err)
	}

	counts := make(map[models.Subject]int)
	var minimum int
	var scopeTag string

	switch config.TestType {
	case models.TestTypePractice:
		counts[config.Subject] = practiceQuestionCount
		minimum = mcq.PracticeMinimum
		scopeTag = string(config.Subject)
	case models.TestTypeGrand:
		for _, subject := range models.GrandTestSubjects {
			counts[subject] = grandCoreCount
		}
		// English questions only when English notes were uploaded
		if _, ok := notes[models.SubjectEnglish]; ok {
			counts[models.SubjectEnglish] = grandEnglishCount
		}
		minimum = mcq.GrandMinimum
		scopeTag = "grand"
	default:
		return fmt.Errorf("unknown test type: %s", config.TestType)
	}

	blocks, err := p.gemini.GenerateMCQBlocks(ctx, notes, counts)
	if err != nil {
		return err
	}

	questions, diags := p.parser.ParseBlocks(blocks)
	if len(diags) > 0 {
		log.Printf("Job %s: parser skipped %d malformed segments", job.ID, len(diags))
	}

	session, err := mcq.Assemble(questions, config.TestType, minimum, scopeTag, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		return err
	}
	session.DeviceID = job.DeviceID

	if err := p.sessionRepo.Save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Persist the link so polling clients can reach the session too, not
	// just listeners on the completed event.
	if err := p.jobRepo.UpdateReference(ctx, job.ID, session.ID); err != nil {
		log.Printf("Job %s: failed to record session reference: %v", job.ID, err)
	}
	job.ReferenceID = session.ID
	log.Printf("Job %s: assembled %s test with %d questions", job.ID, config.TestType, len(session.Questions))
	return nil
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	p.gemini.PublishUpdate(ctx, job.DeviceID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: getResultType(job.Type),
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()

	if job.RetryCount < job.MaxRetries && !isPermanent(err) {
		// Re-queue with backoff
		log.Printf("Job %s failed (attempt %d): %s, retrying", job.ID, job.RetryCount, errMsg)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), "queue:"+job.Type, string(jobBytes))
		})
		return
	}

	log.Printf("Job %s failed permanently: %s", job.ID, errMsg)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	if job.Type == "note-extraction" {
		p.noteRepo.UpdateStatus(ctx, job.ReferenceID, "failed")
	}

	p.gemini.PublishUpdate(ctx, job.DeviceID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    errorCode(err),
			ErrorMessage: errMsg,
		},
	})
}

// isPermanent reports whether retrying cannot help: a thin parser yield or a
// bad request will produce the same outcome every time.
func isPermanent(err error) bool {
	var insufficient *mcq.InsufficientQuestionsError
	var validation *services.ValidationError
	return errors.As(err, &insufficient) || errors.As(err, &validation)
}

func errorCode(err error) string {
	var insufficient *mcq.InsufficientQuestionsError
	if errors.As(err, &insufficient) {
		return "INSUFFICIENT_QUESTIONS"
	}
	var external *services.ExternalServiceError
	if errors.As(err, &external) {
		return "EXTERNAL_SERVICE"
	}
	return "JOB_FAILED"
}

func getResultType(jobType string) string {
	if jobType == "test-generation" {
		return "session"
	}
	return "note"
}
