// Package guardrail screens user input before it reaches the model.
package guardrail

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxInputLength is the longest accepted input, in characters after trimming.
const MaxInputLength = 1000

// Rejection reasons, shown to the user verbatim.
const (
	ReasonTooLong   = "input too long, keep it under 1000 characters"
	ReasonEmpty     = "input must not be empty"
	ReasonSensitive = "input contains inappropriate content, please revise and retry"
	ReasonInjection = "malicious input detected, request rejected"
)

var sensitiveWords = []string{
	"忽略之前的指令",
	"ignore previous instructions",
	"ignore above",
	"破解",
	"hack",
	"绕过",
	"bypass",
	"越狱",
	"jailbreak",
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(?:previous|above|all)\s+(?:instructions?|commands?|prompts?)`),
	regexp.MustCompile(`(?i)(?:forget|disregard)\s+(?:everything|all)\s+(?:above|before)`),
	regexp.MustCompile(`(?i)(?:pretend|act|behave)\s+(?:as|like)\s+(?:if|you\s+are)`),
	regexp.MustCompile(`(?i)system\s*:\s*you\s+are`),
	regexp.MustCompile(`(?i)new\s+(?:instructions?|commands?|prompts?)\s*:`),
}

// Rejection is returned when input fails a check. Reason is user-facing.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string { return "input rejected: " + r.Reason }

// Result is the outcome of Validate. A nil Rejection means accepted.
type Result struct {
	Rejection *Rejection
}

// Accepted reports whether the input passed every check.
func (r Result) Accepted() bool { return r.Rejection == nil }

// Err returns the rejection as an error, or nil when accepted.
func (r Result) Err() error {
	if r.Rejection == nil {
		return nil
	}
	return r.Rejection
}

func reject(reason string) Result { return Result{Rejection: &Rejection{Reason: reason}} }

// Validate runs the checks in order (length, emptiness, blocklist, injection
// patterns) and stops at the first failure.
func Validate(input string) Result {
	text := strings.TrimSpace(input)

	if utf8.RuneCountInString(text) > MaxInputLength {
		return reject(ReasonTooLong)
	}
	if text == "" {
		return reject(ReasonEmpty)
	}

	lower := strings.ToLower(text)
	for _, w := range sensitiveWords {
		if strings.Contains(lower, w) {
			return reject(ReasonSensitive)
		}
	}

	for _, p := range injectionPatterns {
		if p.MatchString(text) {
			return reject(ReasonInjection)
		}
	}

	return Result{}
}
