package mcq

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// Thresholds for the two test flavors. A Grand test spans 30 questions each
// of Physics, Chemistry and Biology plus optional English, so 90 valid
// questions is the floor; a Practice test runs with whatever the parser
// yielded.
const (
	PracticeMinimum = 1
	GrandMinimum    = 90
)

// InsufficientQuestionsError reports that the parser yield fell below the
// caller's threshold. Surfaced to the user; no session is created.
type InsufficientQuestionsError struct {
	Got  int
	Need int
}

func (e *InsufficientQuestionsError) Error() string {
	return fmt.Sprintf("insufficient questions: got %d, need %d", e.Got, e.Need)
}

// Assemble builds a test session from parsed questions. Each question's
// options are independently shuffled on a copy; the input questions are never
// mutated. Ids are "<scopeTag>-<index>". rng may be nil, in which case a
// time-seeded source is used.
func Assemble(questions []models.Question, testType models.TestType, minimum int, scopeTag string, rng *rand.Rand) (*models.TestSession, error) {
	if len(questions) < minimum {
		return nil, &InsufficientQuestionsError{Got: len(questions), Need: minimum}
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	testQuestions := make([]models.TestQuestion, len(questions))
	for i, q := range questions {
		shuffled := shuffleOptions(q.Options, rng)
		tq := models.TestQuestion{
			Question: q,
			ID:       fmt.Sprintf("%s-%d", scopeTag, i),
		}
		tq.Options = shuffled
		testQuestions[i] = tq
	}

	return &models.TestSession{
		ID:        uuid.New(),
		TestType:  testType,
		Questions: testQuestions,
		Answers:   make(map[int]string),
	}, nil
}

// shuffleOptions returns a uniformly shuffled copy (Fisher–Yates).
func shuffleOptions(options []string, rng *rand.Rand) []string {
	shuffled := make([]string, len(options))
	copy(shuffled, options)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled
}
