package scoring

import (
	"testing"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

func taggedQuestion(id string, subject models.Subject, text, explanation string) models.TestQuestion {
	return models.TestQuestion{
		ID: id,
		Question: models.Question{
			Question:      text,
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			Explanation:   explanation,
			Subject:       subject,
		},
	}
}

func TestClassify_ExplicitMetadataWins(t *testing.T) {
	// Text screams Physics, metadata says Biology; metadata wins.
	q := taggedQuestion("grand-0", models.SubjectBiology, "How does energy flow in motion?", "")

	got := NewDefaultClassifier().Classify(q, models.TestTypeGrand)
	if got != models.SubjectBiology {
		t.Errorf("Expected Biology from metadata, got %q", got)
	}
}

func TestClassify_PracticeIDScopeTag(t *testing.T) {
	q := taggedQuestion("Chemistry-4", "", "Something neutral.", "Nothing keyword-ish.")

	got := NewDefaultClassifier().Classify(q, models.TestTypePractice)
	if got != models.SubjectChemistry {
		t.Errorf("Expected Chemistry from id tag, got %q", got)
	}
}

func TestClassify_KeywordFallback(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		explanation string
		want        models.Subject
	}{
		{"physics keyword", "A body in motion stays in motion.", "", models.SubjectPhysics},
		{"chemistry keyword", "Which element is noble?", "", models.SubjectChemistry},
		{"biology keyword", "What does a cell contain?", "", models.SubjectBiology},
		{"keyword in explanation", "Pick one.", "Mitosis is how an organism grows.", models.SubjectBiology},
		{"no keywords falls back to English", "Choose the correct synonym.", "Vocabulary.", models.SubjectEnglish},
		// Known approximation carried over from the original heuristic:
		// "energy" pulls biology content into Physics.
		{"energy misclassifies as physics", "How do mitochondria release energy?", "", models.SubjectPhysics},
	}

	classifier := NewDefaultClassifier()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := taggedQuestion("grand-1", "", tc.text, tc.explanation)
			got := classifier.Classify(q, models.TestTypeGrand)
			if got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassify_PrecedenceOrderPhysicsFirst(t *testing.T) {
	// Both physics and chemistry keywords present; rule order decides.
	q := taggedQuestion("grand-2", "", "What energy does this reaction release?", "")

	got := NewDefaultClassifier().Classify(q, models.TestTypeGrand)
	if got != models.SubjectPhysics {
		t.Errorf("Expected Physics by precedence, got %q", got)
	}
}
