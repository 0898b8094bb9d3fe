package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// ConversationStore implements Durable backed by SQLite.
type ConversationStore struct {
	db  *DB
	now func() time.Time
}

// NewConversationStore creates a durable conversation store using the given database.
func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db, now: time.Now}
}

// FindSession returns a session by ID, or nil if not found.
func (s *ConversationStore) FindSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, user_id, title, itinerary, created_at, modified_at
		 FROM sessions WHERE id = ?`, id,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding session %s: %w", id, err)
	}
	return sess, nil
}

// InsertSession creates a session row. Zero timestamps are filled in.
func (s *ConversationStore) InsertSession(ctx context.Context, sess *domain.Session) error {
	now := s.now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.ModifiedAt.IsZero() {
		sess.ModifiedAt = sess.CreatedAt
	}

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, title, itinerary, created_at, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, nullString(sess.Itinerary),
		formatTime(sess.CreatedAt), formatTime(sess.ModifiedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	return nil
}

// TouchSession bumps modified_at to now.
func (s *ConversationStore) TouchSession(ctx context.Context, id string) error {
	return s.update(ctx, id, `UPDATE sessions SET modified_at = ? WHERE id = ?`, formatTime(s.now()), id)
}

// UpdateItinerary overwrites the stored itinerary and bumps modified_at.
func (s *ConversationStore) UpdateItinerary(ctx context.Context, id, itinerary string) error {
	return s.update(ctx, id,
		`UPDATE sessions SET itinerary = ?, modified_at = ? WHERE id = ?`,
		itinerary, formatTime(s.now()), id,
	)
}

// RenameSession sets a new title.
func (s *ConversationStore) RenameSession(ctx context.Context, id, title string) error {
	return s.update(ctx, id,
		`UPDATE sessions SET title = ?, modified_at = ? WHERE id = ?`,
		title, formatTime(s.now()), id,
	)
}

// DeleteSession removes a session and, by cascade, its messages.
func (s *ConversationStore) DeleteSession(ctx context.Context, id string) error {
	return s.update(ctx, id, `DELETE FROM sessions WHERE id = ?`, id)
}

func (s *ConversationStore) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.sql.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns a user's sessions, most recently modified first.
// Pages are 1-based.
func (s *ConversationStore) ListSessions(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, error) {
	limit, offset := pageBounds(page, pageSize)
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, user_id, title, itinerary, created_at, modified_at
		 FROM sessions WHERE user_id = ?
		 ORDER BY modified_at DESC, id
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// CountSessions returns how many sessions a user owns.
func (s *ConversationStore) CountSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// InsertMessage appends a message. The autoincrement seq column fixes its
// position in the session's history.
func (s *ConversationStore) InsertMessage(ctx context.Context, msg domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role.String(), msg.Content, formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message into %s: %w", msg.SessionID, err)
	}
	return nil
}

// FindMessagesBySession loads the full history of a session in insertion order.
func (s *ConversationStore) FindMessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM messages WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var msg domain.Message
		var role, createdAt string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = domain.RoleFromString(role)
		msg.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var itinerary sql.NullString
	var createdAt, modifiedAt string
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &itinerary, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	sess.Itinerary = itinerary.String
	sess.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	sess.ModifiedAt, _ = time.Parse(timeLayout, modifiedAt)
	return &sess, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
