package turn

import (
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/wayfarer/internal/guardrail"
)

// User-facing texts for failed turns.
const (
	MsgConstructionFailed = "The travel assistant is unavailable right now, please try again later."
	MsgTokenLimit         = "Sorry, the model accepts at most 4096 input tokens. Please shorten your question or start a new session."
	MsgFluctuating        = "The conversation service is fluctuating, please try again later"
)

// tokenLimitMarkers identify provider errors caused by an oversized prompt.
var tokenLimitMarkers = []string{"prompt tokens", "4096", "FORBIDDEN", "context length"}

// ConstructionError reports an infrastructure fault before streaming began:
// the session could not be loaded or created, or no agent instance could be
// built. The turn ends with MsgConstructionFailed.
type ConstructionError struct {
	Stage string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("turn %s: %v", e.Stage, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// UpstreamError is a failure reported inside the provider stream.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return "upstream: " + e.Message }

// Refine turns an upstream failure into the text shown to the user.
func Refine(err error) string {
	if err == nil {
		return MsgFluctuating
	}
	var rej *guardrail.Rejection
	if errors.As(err, &rej) {
		return rej.Reason
	}
	msg := err.Error()
	for _, m := range tokenLimitMarkers {
		if strings.Contains(msg, m) {
			return MsgTokenLimit
		}
	}
	return MsgFluctuating
}
