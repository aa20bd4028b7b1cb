package util

import (
	"strings"
	"unicode/utf8"
)

// CleanText trims whitespace and reports whether the result fits maxLen runes.
func CleanText(s string, maxLen int) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxLen {
		return trimmed, false
	}
	return trimmed, true
}

// IsValidSessionID reports whether s looks like a session join code.
func IsValidSessionID(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < '2' || c > '9') {
			return false
		}
	}
	return true
}
