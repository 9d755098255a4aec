package scoring

import (
	"strings"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// SubjectClassifier resolves the subject a test question belongs to.
type SubjectClassifier interface {
	Classify(q models.TestQuestion, testType models.TestType) models.Subject
}

// keywordRule maps any of its substrings (matched against lowercased
// question + explanation text) to a subject.
type keywordRule struct {
	subject  models.Subject
	keywords []string
}

// DefaultClassifier resolves subjects in a fixed precedence order:
//
//  1. explicit subject metadata carried on the question (preferred; threaded
//     through generation → parsing → assembly),
//  2. the id scope tag for Practice tests ("Physics-3" → Physics),
//  3. a keyword scan of question + explanation text,
//  4. English as the catch-all.
//
// The keyword table and its Physics → Chemistry → Biology ordering reproduce
// the historical heuristic, known approximations included: a Biology question
// mentioning "energy" classifies as Physics. Callers that can carry metadata
// should never reach step 3.
type DefaultClassifier struct {
	rules []keywordRule
}

func NewDefaultClassifier() *DefaultClassifier {
	return &DefaultClassifier{
		rules: []keywordRule{
			{models.SubjectPhysics, []string{"physic", "motion", "energy"}},
			{models.SubjectChemistry, []string{"chemic", "reaction", "element"}},
			{models.SubjectBiology, []string{"biolog", "cell", "organism"}},
		},
	}
}

func (c *DefaultClassifier) Classify(q models.TestQuestion, testType models.TestType) models.Subject {
	if q.Subject != "" {
		return q.Subject
	}

	if testType == models.TestTypePractice {
		if tag, _, found := strings.Cut(q.ID, "-"); found {
			if subject, ok := models.ParseSubject(tag); ok {
				return subject
			}
		}
	}

	content := strings.ToLower(q.Question.Question + " " + q.Explanation)
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(content, kw) {
				return rule.subject
			}
		}
	}

	return models.SubjectEnglish
}
