package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// PhotoRef reduces a path-like image identity reported by the scorer to the
// bare file name users are stored under. Scorer output may carry forward or
// backward slashes depending on the host it ran on, so both are treated as
// separators.
func PhotoRef(identity string) string {
	s := strings.TrimSpace(identity)
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	return s
}
