package retrieval

import "fmt"

// FormatMemory renders a match as a one-line memory for prompt assembly,
// e.g. "[2026-05-01] I'm bored (visiting reddit.com)". ok is false when the
// match has no reflection text to offer.
func FormatMemory(m Match) (string, bool) {
	if m.Reflection == nil {
		return "", false
	}
	text := m.Reflection.Text()
	if text == "" {
		return "", false
	}
	return fmt.Sprintf("[%s] %s (visiting %s)",
		m.Reflection.Timestamp.Local().Format("2006-01-02"), text, m.Reflection.Domain), true
}

// Memories formats every usable match in order.
func Memories(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if s, ok := FormatMemory(m); ok {
			out = append(out, s)
		}
	}
	return out
}
