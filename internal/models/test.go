package models

import (
	"time"

	"github.com/google/uuid"
)

// TestType distinguishes a single-subject Practice test from a full Grand test.
type TestType string

const (
	TestTypePractice TestType = "Practice"
	TestTypeGrand    TestType = "Grand"
)

// Question is one validated multiple-choice question extracted from raw
// generation output. Invariants: exactly four options, CorrectAnswer equals
// one of them, every field non-empty after trimming. Immutable once created.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	// Subject carries the generation batch's subject through to scoring so
	// Grand tests do not have to fall back to the keyword heuristic.
	Subject Subject `json:"subject,omitempty"`
}

// TestQuestion is a Question placed into a session: a unique id within the
// session and an independently shuffled copy of the options. The option order
// is fixed for the lifetime of the session.
type TestQuestion struct {
	Question
	ID string `json:"id"`
}

// TestSession is the single in-progress test for a device. Answers maps a
// question index to the selected option text; absent means unanswered.
type TestSession struct {
	ID           uuid.UUID      `json:"id"`
	DeviceID     uuid.UUID      `json:"device_id"`
	TestType     TestType       `json:"test_type"`
	Questions    []TestQuestion `json:"questions"`
	Answers      map[int]string `json:"answers"`
	CurrentIndex int            `json:"current_index"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SubjectResult is the derived per-subject breakdown of a finished test.
// Recomputed from the session's answers, never hand-edited.
type SubjectResult struct {
	Subject    Subject `json:"subject"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// OverallResult sums the subject breakdowns.
type OverallResult struct {
	Score      int     `json:"score"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Percentage float64 `json:"percentage"`
}

// TestResult is one completed attempt. Append-only: created once after
// scoring succeeds and never mutated.
type TestResult struct {
	ID            uuid.UUID       `json:"id"`
	DeviceID      uuid.UUID       `json:"device_id"`
	TestType      TestType        `json:"test_type"`
	TakenAt       time.Time       `json:"taken_at"`
	Subjects      []SubjectResult `json:"subjects"`
	Overall       OverallResult   `json:"overall"`
	WeakestTopics string          `json:"weakest_topics"`
}

// Requests

type StartPracticeRequest struct {
	Subject string `json:"subject"`
}

type SaveAnswerRequest struct {
	QuestionIndex  int    `json:"question_index"`
	SelectedOption string `json:"selected_option"`
}
