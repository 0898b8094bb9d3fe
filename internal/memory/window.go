package memory

import (
	"context"

	"github.com/soyeahso/wayfarer/internal/domain"
)

// DefaultMaxMessages bounds a Window when no limit is given.
const DefaultMaxMessages = 20

// Window is a bounded view of one session's most recent messages.
type Window struct {
	sessionID string
	max       int
	store     *Store
}

// Window returns the history window for a session.
func (s *Store) Window(sessionID string, maxMessages int) *Window {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Window{sessionID: sessionID, max: maxMessages, store: s}
}

// SessionID returns the session the window belongs to.
func (w *Window) SessionID() string { return w.sessionID }

// Messages returns at most max of the latest messages, oldest first.
func (w *Window) Messages(ctx context.Context) []domain.Message {
	return w.trim(w.store.Messages(ctx, w.sessionID))
}

// Add appends messages and writes the trimmed window back to the fast tier.
// Messages already present by ID are skipped, so adding a message that a
// read-repair just loaded from the durable tier does not duplicate it.
func (w *Window) Add(ctx context.Context, msgs ...domain.Message) {
	current := w.store.Messages(ctx, w.sessionID)
	seen := make(map[string]bool, len(current))
	for _, m := range current {
		seen[m.ID] = true
	}

	next := make([]domain.Message, 0, len(current)+len(msgs))
	next = append(next, current...)
	for _, m := range msgs {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		next = append(next, m)
	}
	w.store.Replace(ctx, w.sessionID, w.trim(next))
}

// Clear drops the fast-tier copy of the window.
func (w *Window) Clear(ctx context.Context) {
	w.store.Delete(ctx, w.sessionID)
}

func (w *Window) trim(msgs []domain.Message) []domain.Message {
	if len(msgs) <= w.max {
		return msgs
	}
	return msgs[len(msgs)-w.max:]
}
