// Package truncate bounds text to a length budget, preferring to cut at a
// sentence or line boundary.
package truncate

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MinLength is the smallest budget honored; smaller budgets are raised to it.
	MinLength = 50
	// suffixBudget is reserved for the truncation marker.
	suffixBudget = 50
)

// breakRunes are the natural cut points, searched right to left.
var breakRunes = []rune{'。', '？', '！', '\n'}

// Truncate returns text unchanged when it fits in maxLength runes. Otherwise it
// cuts at the last natural break inside the budget, or at the hard boundary
// when no break lies far enough in, and appends a marker describing the cut.
func Truncate(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength < MinLength {
		maxLength = MinLength
		if len(runes) <= maxLength {
			return text
		}
	}

	window := maxLength - suffixBudget
	if window <= 0 {
		window = maxLength / 2
	}
	head := runes[:window]

	cut := window
	if b := lastBreak(head); b > int(float64(window)*0.7) {
		cut = b
	}

	m := marker(len(runes) - maxLength + suffixBudget)
	if over := cut + utf8.RuneCountInString(m) - maxLength; over > 0 {
		cut = max(cut-over, 1)
	}

	var sb strings.Builder
	sb.WriteString(string(runes[:cut]))
	sb.WriteString(m)
	return sb.String()
}

// lastBreak returns the index just past the last break rune in head, or -1
// when none lies beyond the first 30% of it.
func lastBreak(head []rune) int {
	floor := int(float64(len(head)) * 0.3)
	for i := len(head) - 1; i > floor; i-- {
		for _, b := range breakRunes {
			if head[i] == b {
				return i + 1
			}
		}
	}
	return -1
}

func marker(removed int) string {
	switch {
	case removed > 1000:
		return fmt.Sprintf("\n\n[truncated ~%d chars, core info kept]", removed)
	case removed > 500:
		return fmt.Sprintf("\n\n[truncated %d chars, main content kept]", removed)
	default:
		return "\n\n[content partially truncated]"
	}
}

// NeedsTruncation reports whether text exceeds maxLength runes.
func NeedsTruncation(text string, maxLength int) bool {
	return len([]rune(text)) > maxLength
}

// EstimateTokens approximates the token count of text: 1.5 per CJK rune and
// 0.75 per other non-space rune.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			cjk++
		case !unicode.IsSpace(r):
			other++
		}
	}
	return int(math.Round(float64(cjk)*1.5 + float64(other)*0.75))
}
