package lookup

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"idremap/internal/records"
)

// Normalize turns a raw identifier into the key form used by every table:
// trimmed, lower-cased, NFC-composed and, when prefixLen > 0, cut to its
// first prefixLen characters. An empty result means "no key" and never
// matches anything.
//
// The trailing trim keeps Normalize idempotent when the cut lands right after
// a space.
func Normalize(raw string, prefixLen int) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	if !norm.NFC.IsNormalString(s) {
		s = norm.NFC.String(s)
	}
	if prefixLen > 0 {
		s = runePrefix(s, prefixLen)
	}
	return strings.TrimSpace(s)
}

// NormalizeParts normalizes each part of a composite key and joins them.
// Any blank part yields the empty key.
func NormalizeParts(parts []string, prefixLen int) string {
	if len(parts) == 1 {
		return Normalize(parts[0], prefixLen)
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = Normalize(p, prefixLen)
		if out[i] == "" {
			return ""
		}
	}
	return records.Join(out...)
}

func runePrefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
