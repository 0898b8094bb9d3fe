package memory

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type localEntry struct {
	blob    []byte
	expires time.Time
}

// LocalTier is an in-process FastTier: a bounded LRU whose entries carry
// their own deadline. Expired entries are dropped on read.
type LocalTier struct {
	cache *lru.Cache[string, localEntry]
	now   func() time.Time
}

// NewLocalTier creates a local tier holding at most capacity keys.
func NewLocalTier(capacity int) *LocalTier {
	if capacity <= 0 {
		capacity = 10000
	}
	c, _ := lru.New[string, localEntry](capacity) // only errors on size <= 0
	return &LocalTier{cache: c, now: time.Now}
}

// WithClock replaces the time source. Used by tests to step past TTLs.
func (l *LocalTier) WithClock(now func() time.Time) *LocalTier {
	l.now = now
	return l
}

func (l *LocalTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !l.now().Before(e.expires) {
		l.cache.Remove(key)
		return nil, false, nil
	}
	return e.blob, true, nil
}

func (l *LocalTier) Set(_ context.Context, key string, blob []byte, ttl time.Duration) error {
	e := localEntry{blob: append([]byte(nil), blob...)}
	if ttl > 0 {
		e.expires = l.now().Add(ttl)
	}
	l.cache.Add(key, e)
	return nil
}

func (l *LocalTier) Delete(_ context.Context, key string) error {
	l.cache.Remove(key)
	return nil
}

// Len returns the number of keys held, including not-yet-reaped expired ones.
func (l *LocalTier) Len() int { return l.cache.Len() }
