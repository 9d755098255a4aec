package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/raeesrind/GT-MCQS-Creator/internal/mcq"
	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// GeminiService wraps every LLM interaction behind thin prompt templates:
// MCQ generation, handwritten-note OCR and weak-topic suggestion. The
// service is the shared rate-limited gateway to the remote model.
type GeminiService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	redis    *redis.Client
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(apiKey string, concurrentReqs int, redisClient *redis.Client) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.7)
	model.SetTopP(0.95)

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{
		client:   client,
		model:    model,
		redis:    redisClient,
		rateChan: rateChan,
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Minute):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// PublishUpdate sends a WebSocket update to the device via Redis pub/sub
func (s *GeminiService) PublishUpdate(ctx context.Context, deviceID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("✗ Failed to marshal WS message: %v", err)
		return
	}
	if err := s.redis.Publish(ctx, fmt.Sprintf("device_updates:%s", deviceID.String()), string(data)).Err(); err != nil {
		log.Printf("✗ Failed to publish update for device %s: %v", deviceID, err)
	}
}

// GenerateMCQBlocks requests questions for every subject with a non-zero
// count and returns the raw, unparsed model output tagged per subject. One
// call per subject keeps the subject tags trustworthy; the blocks still go
// through the fault-tolerant parser because the model does not reliably
// honor the requested format.
func (s *GeminiService) GenerateMCQBlocks(ctx context.Context, notes map[models.Subject]string, counts map[models.Subject]int) ([]mcq.Block, error) {
	var blocks []mcq.Block

	for _, subject := range models.AllSubjects {
		count := counts[subject]
		if count <= 0 {
			continue
		}
		noteText, ok := notes[subject]
		if !ok || strings.TrimSpace(noteText) == "" {
			return nil, &ValidationError{Fields: map[string]string{
				"subject": fmt.Sprintf("no extracted notes available for %s", subject),
			}}
		}

		if err := s.acquireRate(ctx); err != nil {
			return nil, err
		}
		resp, err := s.model.GenerateContent(ctx, genai.Text(buildMCQPrompt(subject, count, noteText)))
		s.releaseRate()
		if err != nil {
			return nil, &ExternalServiceError{Service: "question generation", Err: err}
		}

		rawText := strings.TrimSpace(extractText(resp))
		if rawText == "" {
			log.Printf("WARNING: empty MCQ response for %s, skipping block", subject)
			continue
		}

		blocks = append(blocks, mcq.Block{Subject: subject, Text: rawText})
	}

	return blocks, nil
}

// ExtractTextFromImage transcribes one rasterized note page.
func (s *GeminiService) ExtractTextFromImage(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("image payload is empty")
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx,
		genai.Text(ocrPrompt),
		genai.ImageData("png", image),
	)
	if err != nil {
		return "", &ExternalServiceError{Service: "text extraction", Err: err}
	}

	return strings.TrimSpace(extractText(resp)), nil
}

// SuggestWeakestTopics asks for a comma-separated list of topics to review.
// Callers treat a failure here as a degraded feature, never a hard error.
func (s *GeminiService) SuggestWeakestTopics(ctx context.Context, historySummary string) (string, error) {
	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildTopicsPrompt(historySummary)))
	if err != nil {
		return "", &ExternalServiceError{Service: "weak-topic suggestion", Err: err}
	}

	return strings.TrimSpace(extractText(resp)), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

func buildMCQPrompt(subject models.Subject, count int, notes string) string {
	var b strings.Builder

	b.WriteString("You are an AI that generates exam-style multiple-choice questions (MCQs) from extracted study material. ")
	b.WriteString("Generate tricky, indirect, and rephrased questions based only on the content provided in the notes. ")
	b.WriteString("If the notes cover a specific topic, all questions should come from that topic.\n\n")

	fmt.Fprintf(&b, "Generate exactly %d %s questions.\n\n", count, subject)

	b.WriteString("Here are the notes:\n--- NOTES START ---\n")
	b.WriteString(notes)
	b.WriteString("\n--- NOTES END ---\n\n")

	b.WriteString(`Adhere to the following format for every single question. Do not add any extra text or titles.

Question: [Your question here]
A; [Option A text]
B; [Option B text]
C; [Option C text]
D; [Option D text]
Correct Answer: [Letter] - [A brief, clear explanation of why this is the correct answer]

Instructions for options:
- Sometimes, instead of only single-answer choices, include combined answers such as "Both A and B", "B and C", or "A and D".
- Sometimes, include a special option: "NOT" or "AOT", which means "None of the above".
- Ensure exactly one option is correct. The correct answer must be derived from the provided notes.
- Options should be plausible but not too obvious.
- The difficulty should vary (easy, medium, hard).

Example:
Question: What is the chemical formula of water?
A; H2O
B; CO2
C; O2
D; Both A and C
Correct Answer: A - H2O is the chemical formula for water.
`)

	return b.String()
}

const ocrPrompt = `You are a specialized AI expert at transcribing handwritten notes and documents from images. Accurately extract all handwritten and printed text from the provided image. The notes might include complex diagrams, charts, or graphs.

When you encounter a graph or diagram, describe it in detail within the text. For example: "[Graph: A bar chart showing the relationship between X and Y. The x-axis represents..., and the y-axis represents...]"

Preserve the original structure of the notes, including headings, lists, and paragraphs. Return plain text only.`

func buildTopicsPrompt(historySummary string) string {
	var b strings.Builder

	b.WriteString("You are an AI assistant that identifies the weakest topics for a student based on their test history.\n\n")
	b.WriteString("Analyze the following test history and identify the topics where the student consistently answers incorrectly.\n\n")
	b.WriteString("Test History:\n")
	b.WriteString(historySummary)
	b.WriteString("\n\nProvide a short list of the weakest topics, separated by commas. Return the list only, with no preamble.\n")

	return b.String()
}
