package eventbus

import "strings"

// Topic is an ordered multipart identifier for pub/sub. The empty Topic
// (len == 0) is the wildcard: it matches every publish.
type Topic []string

// String renders a Topic as a dotted "a.b.c" path. Used only for
// logging.
func (t Topic) String() string {
	return strings.Join(t, ".")
}

// prefixes returns every non-empty prefix of t, shortest first:
// for ("a","b","c") that is ("a"), ("a","b"), ("a","b","c"). A
// subscription stored at any of these prefixes receives a publish of t.
func (t Topic) prefixes() []Topic {
	out := make([]Topic, len(t))
	for i := range t {
		out[i] = t[:i+1]
	}
	return out
}

// key renders a Topic into a map key. Go slices aren't comparable, so
// subscription tables are keyed by this string form rather than by Topic
// directly.
func (t Topic) key() string {
	// Tokens are joined with a NUL byte, which keeps the encoding
	// unambiguous as long as no token contains one.
	return strings.Join(t, "\x00")
}
