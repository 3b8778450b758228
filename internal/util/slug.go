package util

import "strings"

// Slugify derives a URL slug from a title: lowercased, spaces become
// dashes, everything outside [a-z0-9_-] is stripped.
func Slugify(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
