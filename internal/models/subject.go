package models

// Subject is one of the four academic categories notes and questions are
// tracked under.
type Subject string

const (
	SubjectPhysics   Subject = "Physics"
	SubjectChemistry Subject = "Chemistry"
	SubjectBiology   Subject = "Biology"
	SubjectEnglish   Subject = "English"
)

// AllSubjects lists every subject in display order.
var AllSubjects = []Subject{SubjectPhysics, SubjectChemistry, SubjectBiology, SubjectEnglish}

// GrandTestSubjects are the subjects a Grand test always requires notes for.
// English is included only when English notes exist.
var GrandTestSubjects = []Subject{SubjectPhysics, SubjectChemistry, SubjectBiology}

// ParseSubject maps a string to a Subject. The second return value is false
// for anything that is not one of the four known subjects.
func ParseSubject(s string) (Subject, bool) {
	switch Subject(s) {
	case SubjectPhysics, SubjectChemistry, SubjectBiology, SubjectEnglish:
		return Subject(s), true
	}
	return "", false
}
