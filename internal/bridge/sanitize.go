package bridge

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Sanitize prepares text for the wire. Bytes that are not valid UTF-8 (which
// includes encoded lone surrogates) and U+FFFD replacement runes are dropped,
// the remainder is NFC-normalized and surrounding whitespace is trimmed.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != utf8.RuneError {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return strings.TrimSpace(norm.NFC.String(b.String()))
}

// sanitizeArgs returns a copy of args with every string sanitized.
func sanitizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			out[i] = Sanitize(v)
		case []string:
			cleaned := make([]string, len(v))
			for j, s := range v {
				cleaned[j] = Sanitize(s)
			}
			out[i] = cleaned
		default:
			out[i] = a
		}
	}
	return out
}
