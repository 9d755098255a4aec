// Package mcq turns raw LLM generation output into validated multiple-choice
// question records. The upstream format is not a stable contract: it drifts
// between otherwise-identical generation calls and across prompt revisions
// (letter-prefixed vs bare option lines, bracketed vs unbracketed answer
// letters, one or many questions per block). The parser is therefore a
// best-effort extractor: it accumulates every segment it can validate and
// skips the rest with a diagnostic. A malformed segment never aborts a batch.
package mcq

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/raeesrind/GT-MCQS-Creator/internal/models"
)

// minSegmentLines is the smallest well-formed segment: one question line,
// four option lines and at least one answer line.
const minSegmentLines = 6

// optionCount is fixed by the question model.
const optionCount = 4

// Diagnostic describes one skipped segment.
type Diagnostic struct {
	Block   int // index into the input blocks
	Segment int // index of the segment within its block
	Reason  string
	Snippet string // leading text of the offending segment
}

// Block is a raw generation block optionally tagged with the subject the
// batch was requested for. The tag survives into every question parsed from
// the block so Grand-test scoring can avoid guessing subjects from text.
type Block struct {
	Subject models.Subject
	Text    string
}

// BoundaryRule splits one raw block into per-question segments. Every rule's
// segmentation is parsed and the one yielding the most questions wins, with
// ties going to the earlier rule. A finer split therefore never displaces a
// coarser one unless its segments actually validate, and new upstream formats
// can be supported by prepending a rule without touching the existing ones.
type BoundaryRule struct {
	Name  string
	Split func(block string) []string
}

var questionLabelPattern = regexp.MustCompile(`(?i)Question\s*\d*\s*[:.]`)

// QuestionLabelBoundary splits on the literal "Question:" label the
// generation prompt asks for (tolerating "Question 3:" and "Question.").
func QuestionLabelBoundary() BoundaryRule {
	return BoundaryRule{
		Name: "question-label",
		Split: func(block string) []string {
			return questionLabelPattern.Split(block, -1)
		},
	}
}

var blankRunPattern = regexp.MustCompile(`\n\s*\n\s*\n+`)

// BlankLineBoundary splits on runs of two or more blank lines. Kept as a
// fallback for prompt revisions that dropped the question label.
func BlankLineBoundary() BoundaryRule {
	return BoundaryRule{
		Name: "blank-line",
		Split: func(block string) []string {
			return blankRunPattern.Split(block, -1)
		},
	}
}

var (
	// "A; text", "A: text", "A. text", "A) text". The marker is stripped,
	// bare lines pass through untouched.
	optionPrefixPattern = regexp.MustCompile(`^[A-D][);:.]\s*`)

	// Tolerant answer-line match: optional bracket around the letter, any
	// case, explanation after a dash, possibly spanning lines.
	defaultAnswerPattern = regexp.MustCompile(`(?is)Correct Answer:.*?\[?([A-D])\]?\s*-\s*(.*)`)
)

var letterIndex = map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}

// Parser extracts Questions from raw generation blocks.
type Parser struct {
	boundaries []BoundaryRule
	answers    []*regexp.Regexp
	warnf      func(format string, args ...interface{})
}

// Option configures a Parser.
type Option func(*Parser)

// WithBoundaryRules replaces the boundary rule chain.
func WithBoundaryRules(rules ...BoundaryRule) Option {
	return func(p *Parser) { p.boundaries = rules }
}

// WithAnswerPatterns replaces the answer-line recognizers, tried in order.
// Each pattern must capture the letter in group 1 and the explanation in
// group 2.
func WithAnswerPatterns(patterns ...*regexp.Regexp) Option {
	return func(p *Parser) { p.answers = patterns }
}

// WithWarnFunc redirects skip diagnostics away from the standard logger.
func WithWarnFunc(f func(format string, args ...interface{})) Option {
	return func(p *Parser) { p.warnf = f }
}

// NewParser builds a Parser with the default recognizers: question-label then
// blank-line boundaries, and the tolerant "Correct Answer" pattern.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		boundaries: []BoundaryRule{QuestionLabelBoundary(), BlankLineBoundary()},
		answers:    []*regexp.Regexp{defaultAnswerPattern},
		warnf:      log.Printf,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse extracts questions from untagged raw blocks. Bad segments are
// skipped, never fatal; the diagnostics slice records every skip.
func (p *Parser) Parse(blocks []string) ([]models.Question, []Diagnostic) {
	tagged := make([]Block, len(blocks))
	for i, b := range blocks {
		tagged[i] = Block{Text: b}
	}
	return p.ParseBlocks(tagged)
}

// ParseBlocks extracts questions from subject-tagged raw blocks.
func (p *Parser) ParseBlocks(blocks []Block) ([]models.Question, []Diagnostic) {
	var questions []models.Question
	var diags []Diagnostic

	for bi, block := range blocks {
		qs, ds := p.parseBlock(block.Text)
		for _, d := range ds {
			d.Block = bi
			p.warnf("mcq: skipping segment %d of block %d: %s (%q)", d.Segment, bi, d.Reason, d.Snippet)
			diags = append(diags, d)
		}
		for _, q := range qs {
			q.Subject = block.Subject
			questions = append(questions, q)
		}
	}

	return questions, diags
}

// parseBlock tries every candidate segmentation of one block and keeps the
// result with the most parsed questions. A question whose own body contains a
// blank run still parses whole under the question-label rule, because the
// blank-line split only wins when its pieces validate better.
func (p *Parser) parseBlock(text string) ([]models.Question, []Diagnostic) {
	var bestQs []models.Question
	var bestDiags []Diagnostic

	for ci, segments := range p.segmentations(text) {
		qs, ds := p.parseSegments(segments)
		if ci == 0 || len(qs) > len(bestQs) {
			bestQs, bestDiags = qs, ds
		}
	}
	return bestQs, bestDiags
}

// segmentations returns each boundary rule's non-empty trimmed segments in
// rule order, always ending with the whole block as a single segment.
func (p *Parser) segmentations(block string) [][]string {
	var candidates [][]string
	for _, rule := range p.boundaries {
		parts := rule.Split(block)
		segments := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				segments = append(segments, trimmed)
			}
		}
		if len(segments) > 0 {
			candidates = append(candidates, segments)
		}
	}
	if trimmed := strings.TrimSpace(block); trimmed != "" {
		candidates = append(candidates, []string{trimmed})
	}
	return candidates
}

func (p *Parser) parseSegments(segments []string) ([]models.Question, []Diagnostic) {
	var qs []models.Question
	var ds []Diagnostic
	for si, segment := range segments {
		q, reason := p.parseSegment(segment)
		if reason != "" {
			ds = append(ds, Diagnostic{Segment: si, Reason: reason, Snippet: snippet(segment)})
			continue
		}
		qs = append(qs, *q)
	}
	return qs, ds
}

// parseSegment validates one raw segment. An empty reason means success.
func (p *Parser) parseSegment(segment string) (*models.Question, string) {
	var lines []string
	for _, line := range strings.Split(segment, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	if len(lines) < minSegmentLines {
		return nil, fmt.Sprintf("too few lines: got %d, need %d", len(lines), minSegmentLines)
	}

	questionText := strings.TrimSpace(questionLabelPattern.ReplaceAllString(lines[0], ""))
	if questionText == "" {
		return nil, "empty question text"
	}

	options := make([]string, optionCount)
	for i := 0; i < optionCount; i++ {
		options[i] = strings.TrimSpace(optionPrefixPattern.ReplaceAllString(lines[1+i], ""))
	}

	answerBlock := strings.Join(lines[1+optionCount:], "\n")
	letter, explanation, ok := p.matchAnswer(answerBlock)
	if !ok {
		return nil, "unrecognized answer line"
	}

	index, ok := letterIndex[strings.ToUpper(letter)]
	if !ok || index >= len(options) {
		return nil, fmt.Sprintf("answer letter %q out of range", letter)
	}
	if options[index] == "" {
		return nil, fmt.Sprintf("answer letter %q points at an empty option", letter)
	}

	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return nil, "empty explanation"
	}

	return &models.Question{
		Question:      questionText,
		Options:       options,
		CorrectAnswer: options[index],
		Explanation:   explanation,
	}, ""
}

func (p *Parser) matchAnswer(answerBlock string) (letter, explanation string, ok bool) {
	for _, pattern := range p.answers {
		if m := pattern.FindStringSubmatch(answerBlock); m != nil {
			return m[1], m[2], true
		}
	}
	return "", "", false
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
