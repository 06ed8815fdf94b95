package fname

import (
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain filename",
			input:    "report.pdf",
			expected: "report.pdf",
		},
		{
			name:     "spaces kept",
			input:    "quarterly report.pdf",
			expected: "quarterly report.pdf",
		},
		{
			name:     "path stripped",
			input:    "/etc/passwd",
			expected: "passwd",
		},
		{
			name:     "windows path stripped",
			input:    `C:\Users\me\notes.txt`,
			expected: "notes.txt",
		},
		{
			name:     "traversal collapses to base name",
			input:    "../../secret.txt",
			expected: "secret.txt",
		},
		{
			name:     "unsafe characters replaced",
			input:    "a<b>c:d.txt",
			expected: "a_b_c_d.txt",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "unnamed",
		},
		{
			name:     "only dots",
			input:    "...",
			expected: "unnamed",
		},
		{
			name:     "unicode replaced",
			input:    "résumé.doc",
			expected: "r_sum_.doc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSanitizeLongName(t *testing.T) {
	long := strings.Repeat("a", 300) + ".txt"
	got := Sanitize(long)

	if len(got) > 255 {
		t.Errorf("sanitized name too long: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Errorf("extension not preserved: %q", got[len(got)-8:])
	}
}
