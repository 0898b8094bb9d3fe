package memory

import (
	"context"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// DefaultKeyPrefix namespaces fast-tier keys.
const DefaultKeyPrefix = "wayfarer:memory:"

// HistoryLoader reads a session's full durable history in order.
type HistoryLoader interface {
	FindMessagesBySession(ctx context.Context, sessionID string) ([]domain.Message, error)
}

// Options configures a Store.
type Options struct {
	KeyPrefix string
	TTL       time.Duration
}

// Store is the two-tier conversation memory. It never writes the durable
// tier and never returns errors: fast-tier faults read as misses and durable
// faults read as empty history.
type Store struct {
	fast    FastTier
	durable HistoryLoader
	codec   Codec
	prefix  string
	ttl     time.Duration
	log     *logging.Logger
}

// NewStore creates a two-tier store.
func NewStore(fast FastTier, durable HistoryLoader, codec Codec, opts Options, log *logging.Logger) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &Store{
		fast:    fast,
		durable: durable,
		codec:   codec,
		prefix:  opts.KeyPrefix,
		ttl:     opts.TTL,
		log:     log.Sub("memory"),
	}
}

// Key returns the fast-tier key for a session.
func (s *Store) Key(sessionID string) string { return s.prefix + sessionID }

// Messages returns the session history. The fast tier is consulted first;
// an absent, undecodable, empty or system-only entry falls through to the
// durable tier, whose result is written back with a fresh TTL.
func (s *Store) Messages(ctx context.Context, sessionID string) []domain.Message {
	key := s.Key(sessionID)

	if msgs, ok := s.readFast(ctx, key); ok && len(msgs) > 0 && !domain.AllSystem(msgs) {
		return msgs
	}

	msgs, err := s.durable.FindMessagesBySession(ctx, sessionID)
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("durable history read failed")
		return []domain.Message{}
	}
	if len(msgs) == 0 {
		return []domain.Message{}
	}

	s.writeFast(ctx, key, msgs)
	s.log.Debug().Str("sessionId", sessionID).Int("messages", len(msgs)).Msg("fast tier repaired from durable store")
	return msgs
}

// Replace overwrites the fast-tier history for a session and refreshes its TTL.
func (s *Store) Replace(ctx context.Context, sessionID string, msgs []domain.Message) {
	s.writeFast(ctx, s.Key(sessionID), msgs)
}

// Delete drops the fast-tier entry. The durable history is untouched.
func (s *Store) Delete(ctx context.Context, sessionID string) {
	if err := s.fast.Delete(ctx, s.Key(sessionID)); err != nil {
		s.log.Warn().Err(err).Str("sessionId", sessionID).Msg("fast tier delete failed")
	}
}

func (s *Store) readFast(ctx context.Context, key string) ([]domain.Message, bool) {
	blob, ok, err := s.fast.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("fast tier read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	msgs, err := s.codec.Decode(blob)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Str("codec", s.codec.Name()).Msg("fast tier entry undecodable")
		return nil, false
	}
	return msgs, true
}

func (s *Store) writeFast(ctx context.Context, key string, msgs []domain.Message) {
	blob, err := s.codec.Encode(msgs)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("encoding history failed")
		return
	}
	if err := s.fast.Set(ctx, key, blob, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("fast tier write failed")
	}
}
