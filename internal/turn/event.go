package turn

import "github.com/soyeahso/wayfarer/internal/domain"

// Kind distinguishes text chunks from the terminating stop event.
type Kind uint8

const (
	KindText Kind = iota
	KindStop
)

func (k Kind) String() string {
	if k == KindStop {
		return "stop"
	}
	return "text"
}

// Event is one element of the caller-facing stream. Every stream is a run
// of text events terminated by exactly one stop event.
type Event struct {
	Kind Kind
	Text string
}

// Identity is the user and session a turn runs for.
type Identity = domain.Identity

// Request is one user message addressed to a session.
type Request struct {
	SessionID string
	UserID    string
	Text      string
	// NoCache builds a fresh agent for this turn without touching the
	// instance cache.
	NoCache bool
}
