package bot

import (
	"strings"
	"unicode/utf8"
)

// truncateMessage cuts s to at most max runes, marking the cut with "...".
func truncateMessage(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-3]) + "..."
}

// splitMessage breaks s into chunks of at most max runes, preferring to
// break after a newline. An empty s yields one empty chunk.
func splitMessage(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var chunks []string
	runes := []rune(s)
	for len(runes) > max {
		cut := max
		if i := strings.LastIndex(string(runes[:max]), "\n"); i > 0 {
			cut = utf8.RuneCountInString(string(runes[:max])[:i]) + 1
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
