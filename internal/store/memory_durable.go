package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
)

// MemoryDurable is an in-process Durable for tests and ephemeral runs.
type MemoryDurable struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session  // id → session
	messages map[string][]domain.Message // session id → ordered history
	now      func() time.Time
}

// NewMemoryDurable creates an empty in-memory durable store.
func NewMemoryDurable() *MemoryDurable {
	return &MemoryDurable{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.Message),
		now:      time.Now,
	}
}

func (m *MemoryDurable) FindSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (m *MemoryDurable) InsertSession(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = m.now()
	}
	if sess.ModifiedAt.IsZero() {
		sess.ModifiedAt = sess.CreatedAt
	}
	cp := *sess
	m.sessions[sess.ID] = &cp
	return nil
}

func (m *MemoryDurable) TouchSession(_ context.Context, id string) error {
	return m.mutate(id, func(s *domain.Session) {})
}

func (m *MemoryDurable) UpdateItinerary(_ context.Context, id, itinerary string) error {
	return m.mutate(id, func(s *domain.Session) { s.Itinerary = itinerary })
}

func (m *MemoryDurable) RenameSession(_ context.Context, id, title string) error {
	return m.mutate(id, func(s *domain.Session) { s.Title = title })
}

func (m *MemoryDurable) mutate(id string, fn func(*domain.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(sess)
	sess.ModifiedAt = m.now()
	return nil
}

func (m *MemoryDurable) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return nil
}

func (m *MemoryDurable) ListSessions(_ context.Context, userID string, page, pageSize int) ([]domain.Session, error) {
	m.mu.RLock()
	var all []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			all = append(all, *s)
		}
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].ModifiedAt.Equal(all[j].ModifiedAt) {
			return all[i].ModifiedAt.After(all[j].ModifiedAt)
		}
		return all[i].ID < all[j].ID
	})

	limit, offset := pageBounds(page, pageSize)
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (m *MemoryDurable) CountSessions(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, s := range m.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDurable) InsertMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[msg.SessionID]; !ok {
		return ErrSessionNotFound
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *MemoryDurable) FindMessagesBySession(_ context.Context, sessionID string) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.messages[sessionID]
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]domain.Message, len(src))
	copy(out, src)
	return out, nil
}
