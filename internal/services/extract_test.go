package services

import "testing"

func TestNormalizeExtractedText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims line whitespace", "  hello  \n  world  ", "hello\nworld"},
		{"collapses blank runs", "a\n\n\n\nb", "a\n\nb"},
		{"normalizes crlf", "a\r\nb\rc", "a\nb\nc"},
		{"empty input", "   \n \n ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeExtractedText(tc.input)
			if got != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHasTextLayer(t *testing.T) {
	if HasTextLayer([]string{"", "  ", "\n"}) {
		t.Error("Expected blank pages to report no text layer")
	}
	if !HasTextLayer([]string{"", "Newton's second law", ""}) {
		t.Error("Expected a page with text to report a text layer")
	}
	if HasTextLayer(nil) {
		t.Error("Expected nil pages to report no text layer")
	}
}
