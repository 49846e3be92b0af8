package logger

import (
	"errors"
	"strings"
	"testing"
)

func TestSanitizeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
	}{
		{name: "empty", input: "", maxLength: 10, want: ""},
		{name: "plain", input: "hello", maxLength: 10, want: "hello"},
		{name: "control characters removed", input: "a\x00b\x1bc", maxLength: 10, want: "abc"},
		{name: "newline kept", input: "a\nb", maxLength: 10, want: "a\nb"},
		{name: "truncated", input: "abcdefghij", maxLength: 4, want: "abcd..."},
		{name: "multibyte not split", input: "ééé", maxLength: 3, want: "é..."},
		{name: "invalid utf8 repaired", input: "ok\xffok", maxLength: 10, want: "okok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeString(tt.input, tt.maxLength); got != tt.want {
				t.Errorf("SanitizeString(%q, %d) = %q, want %q", tt.input, tt.maxLength, got, tt.want)
			}
		})
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "path and query dropped", input: "https://www.youtube.com/watch?v=abc", want: "https://www.youtube.com"},
		{name: "no host", input: "not a url", want: "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizeURL(tt.input); got != tt.want {
				t.Errorf("SanitizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	if got := SanitizeError(nil); got != "" {
		t.Errorf("SanitizeError(nil) = %q, want empty", got)
	}

	long := errors.New(strings.Repeat("x", MaxErrorMessageLength+50))
	got := SanitizeError(long)
	if len(got) != MaxErrorMessageLength+3 {
		t.Errorf("SanitizeError() length = %d, want %d", len(got), MaxErrorMessageLength+3)
	}
}

func TestNewFileLogger(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := NewFileLogger(FileOptions{Dir: dir, Debug: true})
	if err != nil {
		t.Fatalf("NewFileLogger() error = %v", err)
	}
	log.Info("file_logger_test")
	if err := Sync(log); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
}
