package store

import (
	"context"
	"errors"

	"github.com/soyeahso/wayfarer/internal/domain"
)

// ErrSessionNotFound is returned by mutations that target a missing session.
var ErrSessionNotFound = errors.New("session not found")

// DefaultPageSize applies when ListSessions is called with pageSize <= 0.
const DefaultPageSize = 20

// Durable is the source of truth for sessions and their messages.
// FindSession returns (nil, nil) when the session does not exist.
// FindMessagesBySession returns messages in insertion order.
type Durable interface {
	FindSession(ctx context.Context, id string) (*domain.Session, error)
	InsertSession(ctx context.Context, s *domain.Session) error
	TouchSession(ctx context.Context, id string) error
	UpdateItinerary(ctx context.Context, id, itinerary string) error
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, error)
	CountSessions(ctx context.Context, userID string) (int, error)

	InsertMessage(ctx context.Context, msg domain.Message) error
	FindMessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error)
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

var (
	_ Durable = (*ConversationStore)(nil)
	_ Durable = (*MemoryDurable)(nil)
)
