// Package sessions exposes session listing, history, rename and delete to
// the gateway and the CLI. Deletion also drops the session's fast-tier
// history and its cached agent.
package sessions

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/memory"
	"github.com/soyeahso/wayfarer/internal/store"
)

// Invalidator drops cached agents. *agent.InstanceCache implements it.
type Invalidator interface {
	Invalidate(sessionID string)
}

// Page is one page of a user's sessions, most recently modified first.
type Page struct {
	Sessions []domain.Session `json:"sessions"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"pageSize"`
}

// Service coordinates session operations across the durable store, the
// memory fast tier and the agent cache. Memory and cache may be nil when
// the caller has no running agents, as in the CLI.
type Service struct {
	durable store.Durable
	memory  *memory.Store
	cache   Invalidator
	hooks   *hooks.Manager
	log     *logging.Logger
}

// New creates a Service.
func New(durable store.Durable, mem *memory.Store, cache Invalidator, hm *hooks.Manager, log *logging.Logger) *Service {
	return &Service{
		durable: durable,
		memory:  mem,
		cache:   cache,
		hooks:   hm,
		log:     log.Sub("sessions"),
	}
}

// List returns one page of userID's sessions.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (Page, error) {
	if userID == "" {
		userID = domain.DefaultUserID
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	list, err := s.durable.ListSessions(ctx, userID, page, pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("listing sessions: %w", err)
	}
	total, err := s.durable.CountSessions(ctx, userID)
	if err != nil {
		return Page{}, fmt.Errorf("counting sessions: %w", err)
	}
	if list == nil {
		list = []domain.Session{}
	}
	return Page{Sessions: list, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns a session or store.ErrSessionNotFound.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.durable.FindSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if sess == nil {
		return nil, store.ErrSessionNotFound
	}
	return sess, nil
}

// History returns the full message history of a session from the durable
// store, oldest first.
func (s *Service) History(ctx context.Context, id string) ([]domain.Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.durable.FindMessagesBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading history of %s: %w", id, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Rename sets a session's title.
func (s *Service) Rename(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("renaming session %s: title must not be empty", id)
	}
	return s.durable.RenameSession(ctx, id, title)
}

// Delete removes a session with its messages, drops the fast-tier copy of
// its history and evicts its agent.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.durable.DeleteSession(ctx, id); err != nil {
		return err
	}
	if s.memory != nil {
		s.memory.Delete(ctx, id)
	}
	if s.cache != nil {
		s.cache.Invalidate(id)
	}
	s.log.Info().Str("sessionId", id).Msg("session deleted")
	s.hooks.Emit(ctx, hooks.EventSessionDeleted, map[string]any{
		"sessionId": id,
		"userId":    domain.IdentityFrom(ctx).UserID,
	})
	return nil
}
