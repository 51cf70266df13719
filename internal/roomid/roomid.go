// Package roomid derives the canonical chat room identifier for a pair of users.
package roomid

// Delimiter joins the two user ids. User ids are MongoDB ObjectID hex strings,
// which never contain an underscore, so distinct pairs always map to distinct
// room ids.
const Delimiter = "_"

// ID returns the canonical room identifier for the unordered pair (a, b).
// The two ids are sorted into a fixed order before joining, so both
// participants compute the same value independently: ID(a, b) == ID(b, a).
func ID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + Delimiter + b
}
