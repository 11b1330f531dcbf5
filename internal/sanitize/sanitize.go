// Package sanitize turns raw model output into executable source.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// fenceLine matches a line that holds only a fence, with an optional
	// language tag (```javascript, ```lua, ```js ...). A tag is only a tag
	// when nothing else follows it on the line.
	fenceLine = regexp.MustCompile("(?m)^[ \t]*`{3,}[A-Za-z0-9_+-]*[ \t]*$")

	// bareFence matches any remaining fence marker, such as the ones around
	// a single-line reply.
	bareFence = regexp.MustCompile("`{3,}")
)

// Code strips Markdown code-fence markers and surrounding whitespace.
// It never fails; text without fences is only trimmed. Applying it twice
// yields the same result as applying it once.
func Code(raw string) string {
	out := raw
	for {
		next := fenceLine.ReplaceAllString(out, "")
		next = strings.TrimSpace(bareFence.ReplaceAllString(next, ""))
		if next == out {
			return next
		}
		out = next
	}
}
