// Package scoring computes per-subject and overall statistics for a finished
// test session. Scoring itself is a pure function of the session and its
// answer map; the one external call (weak-topic suggestion) may fail
// independently and degrades to an empty suggestion string without blocking
// the score.
package scoring

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// TopicSuggester asks an external service which topics the student should
// review, given a plain-text summary of right and wrong answers.
type TopicSuggester interface {
	SuggestWeakestTopics(ctx context.Context, historySummary string) (string, error)
}

type Engine struct {
	classifier SubjectClassifier
	suggester  TopicSuggester
}

// NewEngine builds a scoring engine. suggester may be nil, in which case
// results simply carry no weak-topic suggestions.
func NewEngine(classifier SubjectClassifier, suggester TopicSuggester) *Engine {
	return &Engine{classifier: classifier, suggester: suggester}
}

type subjectTally struct {
	correct int
	total   int
}

// Score grades the session against its answer map. Unanswered questions
// count as incorrect; answers compare by exact string equality against the
// question's correct option. The returned degraded flag is true when topic
// suggestion was attempted but failed.
func (e *Engine) Score(ctx context.Context, session *models.TestSession) (*models.TestResult, bool) {
	tallies := make(map[models.Subject]*subjectTally)
	correctCount := 0

	var history strings.Builder
	for i, q := range session.Questions {
		subject := e.classifier.Classify(q, session.TestType)
		tally := tallies[subject]
		if tally == nil {
			tally = &subjectTally{}
			tallies[subject] = tally
		}
		tally.total++

		answer, answered := session.Answers[i]
		correct := answered && answer == q.CorrectAnswer
		if correct {
			correctCount++
			tally.correct++
		}

		verdict := "Incorrect"
		if correct {
			verdict = "Correct"
		}
		fmt.Fprintf(&history, "Q%d (%s): %s. Correct was %s. My answer: %s.\n",
			i+1, subject, verdict, q.CorrectAnswer, answerOrBlank(answer, answered))
	}

	weakestTopics, degraded := e.suggestTopics(ctx, history.String())

	total := len(session.Questions)
	incorrect := total - correctCount
	percentage := 0.0
	if total > 0 {
		percentage = float64(correctCount) / float64(total) * 100
	}

	// Subjects appear in display order; subjects with no questions are
	// omitted entirely.
	var subjects []models.SubjectResult
	for _, subject := range models.AllSubjects {
		tally, ok := tallies[subject]
		if !ok || tally.total == 0 {
			continue
		}
		subjects = append(subjects, models.SubjectResult{
			Subject:    subject,
			Correct:    tally.correct,
			Incorrect:  tally.total - tally.correct,
			Total:      tally.total,
			Percentage: float64(tally.correct) / float64(tally.total) * 100,
		})
	}

	return &models.TestResult{
		ID:       uuid.New(),
		DeviceID: session.DeviceID,
		TestType: session.TestType,
		TakenAt:  time.Now().UTC(),
		Subjects: subjects,
		Overall: models.OverallResult{
			Score:      correctCount,
			Correct:    correctCount,
			Incorrect:  incorrect,
			Percentage: percentage,
		},
		WeakestTopics: weakestTopics,
	}, degraded
}

func (e *Engine) suggestTopics(ctx context.Context, historySummary string) (topics string, degraded bool) {
	if e.suggester == nil {
		return "", false
	}

	topics, err := e.suggester.SuggestWeakestTopics(ctx, historySummary)
	if err != nil {
		log.Printf("scoring: weak-topic suggestion failed, continuing without: %v", err)
		return "", true
	}
	return strings.TrimSpace(topics), false
}

func answerOrBlank(answer string, answered bool) string {
	if !answered {
		return "(unanswered)"
	}
	return answer
}
