package logutil

import (
	"strings"
	"unicode/utf8"
)

// maxLogField bounds how much of a client-supplied value reaches the log.
const maxLogField = 256

// SanitizeForLog flattens newlines, tabs and other control characters in
// client-supplied strings so they cannot forge log lines, and truncates
// overly long values.
func SanitizeForLog(s string) string {
	var result strings.Builder
	result.Grow(min(len(s), maxLogField))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			result.WriteByte(' ')
		case r < 32 || r == 127:
			// dropped
		default:
			result.WriteRune(r)
		}
	}
	return Truncate(result.String(), maxLogField)
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
// A truncated value ends in "...".
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "..."
	if n <= len(ellipsis) {
		return ellipsis[:max(n, 0)]
	}
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
