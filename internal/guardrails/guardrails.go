// Package guardrails checks function descriptions before they reach the
// completion model.
//
// Checks:
//   - required: the description must contain non-whitespace text
//   - max_length: rune count limit
//   - prompt_injection: heuristic detection of instruction-override phrasing;
//     reported, never blocking, since the sandbox is the real boundary
package guardrails

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxLength is the rune limit used when none is configured.
const DefaultMaxLength = 2000

var (
	// ErrEmpty is returned for blank descriptions.
	ErrEmpty = errors.New("functionDesc is required")

	// ErrTooLong is returned when a description exceeds the rune limit.
	ErrTooLong = errors.New("functionDesc is too long")
)

// Result is the outcome of checking one description.
type Result struct {
	// Description is the trimmed text passed on to the pipeline.
	Description string

	// Suspicious is set when an injection pattern matched.
	Suspicious bool
	Pattern    string
}

// ── Description Guard ───────────────────────────────────────

// Guard validates descriptions. The zero value uses DefaultMaxLength.
type Guard struct {
	MaxLength int
}

// Check trims and validates a description.
func (g Guard) Check(description string) (Result, error) {
	text := strings.TrimSpace(description)
	if text == "" {
		return Result{}, ErrEmpty
	}

	maxLen := g.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}
	if n := utf8.RuneCountInString(text); n > maxLen {
		return Result{}, fmt.Errorf("%w: %d characters, limit %d", ErrTooLong, n, maxLen)
	}

	res := Result{Description: text}
	for _, re := range injectionPatterns {
		if re.MatchString(text) {
			res.Suspicious = true
			res.Pattern = re.String()
			break
		}
	}
	return res, nil
}

// ── Prompt Injection Detection ──────────────────────────────

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?|directions?)`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|rules?)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above|your)\s+(instructions?|prompts?|rules?|context)`),
	regexp.MustCompile(`(?i)new\s+instructions?:\s*`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)\b(require|import)\s*\(\s*['"]`),
	regexp.MustCompile(`(?i)\bprocess\.(env|exit)\b`),
	regexp.MustCompile(`(?i)\bos\.(execute|getenv|remove)\b`),
}
