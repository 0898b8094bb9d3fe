package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingLoader is a HistoryLoader that records how often it is hit.
type countingLoader struct {
	msgs  map[string][]domain.Message
	err   error
	calls atomic.Int32
}

func (c *countingLoader) FindMessagesBySession(_ context.Context, id string) ([]domain.Message, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.msgs[id], nil
}

func msg(id string, role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        id,
		SessionID: "s1",
		Role:      role,
		Content:   content,
		CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 123456789, time.UTC),
	}
}

func redisStore(t *testing.T, loader HistoryLoader, codec Codec) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	tier := NewRedisTier(RedisOptions{Addr: mr.Addr()})
	t.Cleanup(func() { tier.Close() })
	s := NewStore(tier, loader, codec, Options{TTL: 30 * time.Minute}, logging.New(nil, "silent"))
	return s, mr
}

func TestStore_ReplaceThenRead(t *testing.T) {
	ctx := context.Background()
	cbor, err := NewCBORCodec()
	require.NoError(t, err)

	for _, codec := range []Codec{JSONCodec{}, cbor} {
		t.Run(codec.Name(), func(t *testing.T) {
			loader := &countingLoader{}
			s, mr := redisStore(t, loader, codec)

			want := []domain.Message{msg("m1", domain.RoleUser, "hi"), msg("m2", domain.RoleAssistant, "hello")}
			s.Replace(ctx, "s1", want)

			got := s.Messages(ctx, "s1")
			require.Len(t, got, 2)
			assert.Equal(t, "m1", got[0].ID)
			assert.Equal(t, domain.RoleAssistant, got[1].Role)
			assert.True(t, want[0].CreatedAt.Equal(got[0].CreatedAt))
			assert.Equal(t, int32(0), loader.calls.Load())

			assert.True(t, mr.Exists(DefaultKeyPrefix+"s1"))
			assert.Equal(t, 30*time.Minute, mr.TTL(DefaultKeyPrefix+"s1"))
		})
	}
}

func TestStore_ReadRepairAfterExpiry(t *testing.T) {
	ctx := context.Background()
	durable := []domain.Message{
		msg("m1", domain.RoleUser, "a"),
		msg("m2", domain.RoleAssistant, "b"),
		msg("m3", domain.RoleUser, "c"),
	}
	loader := &countingLoader{msgs: map[string][]domain.Message{"s1": durable}}
	s, mr := redisStore(t, loader, JSONCodec{})

	s.Replace(ctx, "s1", durable[:2])
	mr.FastForward(31 * time.Minute)
	require.False(t, mr.Exists(s.Key("s1")))

	got := s.Messages(ctx, "s1")
	require.Len(t, got, 3)
	assert.Equal(t, "m3", got[2].ID)
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.True(t, mr.Exists(s.Key("s1")))

	got = s.Messages(ctx, "s1")
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), loader.calls.Load(), "second read must be served by the fast tier")
}

func TestStore_FallsThroughOnUnusableEntries(t *testing.T) {
	ctx := context.Background()
	durable := []domain.Message{msg("m1", domain.RoleUser, "a")}

	tests := []struct {
		name  string
		setup func(s *Store, mr *miniredis.Miniredis)
	}{
		{"absent", func(*Store, *miniredis.Miniredis) {}},
		{"empty list", func(s *Store, _ *miniredis.Miniredis) { s.Replace(ctx, "s1", nil) }},
		{"system only", func(s *Store, _ *miniredis.Miniredis) {
			s.Replace(ctx, "s1", []domain.Message{msg("sys", domain.RoleSystem, "be nice")})
		}},
		{"garbage", func(s *Store, mr *miniredis.Miniredis) { require.NoError(t, mr.Set(s.Key("s1"), "{not json")) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &countingLoader{msgs: map[string][]domain.Message{"s1": durable}}
			s, mr := redisStore(t, loader, JSONCodec{})
			tt.setup(s, mr)

			got := s.Messages(ctx, "s1")
			require.Len(t, got, 1)
			assert.Equal(t, "m1", got[0].ID)
			assert.Equal(t, int32(1), loader.calls.Load())
		})
	}
}

func TestStore_DurableErrorYieldsEmpty(t *testing.T) {
	loader := &countingLoader{err: errors.New("db down")}
	s, _ := redisStore(t, loader, JSONCodec{})

	got := s.Messages(context.Background(), "s1")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_FastTierDownFallsBackToDurable(t *testing.T) {
	loader := &countingLoader{msgs: map[string][]domain.Message{"s1": {msg("m1", domain.RoleUser, "a")}}}
	s, mr := redisStore(t, loader, JSONCodec{})
	mr.Close()

	got := s.Messages(context.Background(), "s1")
	require.Len(t, got, 1)
	s.Replace(context.Background(), "s1", got) // logged, not fatal
	s.Delete(context.Background(), "s1")
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, mr := redisStore(t, &countingLoader{}, JSONCodec{})
	s.Replace(ctx, "s1", []domain.Message{msg("m1", domain.RoleUser, "a")})
	s.Delete(ctx, "s1")
	assert.False(t, mr.Exists(s.Key("s1")))
}

func TestLocalTier_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tier := NewLocalTier(2).WithClock(func() time.Time { return now })

	require.NoError(t, tier.Set(ctx, "k", []byte("v"), time.Minute))
	b, ok, err := tier.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	now = now.Add(time.Minute)
	_, ok, err = tier.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, tier.Len())
}

func TestLocalTier_Capacity(t *testing.T) {
	ctx := context.Background()
	tier := NewLocalTier(2)
	require.NoError(t, tier.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, tier.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, tier.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := tier.Get(ctx, "a")
	assert.False(t, ok, "oldest key evicted")
	_, ok, _ = tier.Get(ctx, "c")
	assert.True(t, ok)

	require.NoError(t, tier.Delete(ctx, "c"))
	_, ok, _ = tier.Get(ctx, "c")
	assert.False(t, ok)
}

func TestStore_LocalTierReadRepair(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tier := NewLocalTier(10).WithClock(func() time.Time { return now })
	loader := &countingLoader{msgs: map[string][]domain.Message{"s1": {msg("m1", domain.RoleUser, "a")}}}
	s := NewStore(tier, loader, JSONCodec{}, Options{KeyPrefix: "t:", TTL: time.Minute}, logging.New(nil, "silent"))

	assert.Len(t, s.Messages(ctx, "s1"), 1)
	assert.Len(t, s.Messages(ctx, "s1"), 1)
	assert.Equal(t, int32(1), loader.calls.Load())

	now = now.Add(2 * time.Minute)
	assert.Len(t, s.Messages(ctx, "s1"), 1)
	assert.Equal(t, int32(2), loader.calls.Load())
}

func TestWindow_TrimsAndDedupes(t *testing.T) {
	ctx := context.Background()
	history := []domain.Message{
		msg("m1", domain.RoleUser, "1"),
		msg("m2", domain.RoleAssistant, "2"),
		msg("m3", domain.RoleUser, "3"),
	}
	loader := &countingLoader{msgs: map[string][]domain.Message{"s1": history}}
	tier := NewLocalTier(10)
	s := NewStore(tier, loader, JSONCodec{}, Options{TTL: time.Minute}, logging.New(nil, "silent"))

	w := s.Window("s1", 2)
	got := w.Messages(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "m2", got[0].ID)
	assert.Equal(t, "m3", got[1].ID)

	// m3 is already present after read-repair; only m4 is appended
	w.Add(ctx, history[2], msg("m4", domain.RoleAssistant, "4"))
	got = w.Messages(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].ID)
	assert.Equal(t, "m4", got[1].ID)

	w.Clear(ctx)
	_, ok, _ := tier.Get(ctx, s.Key("s1"))
	assert.False(t, ok)
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName("cbor")
	require.NoError(t, err)
	assert.Equal(t, "cbor", c.Name())

	_, err = CodecByName("gob")
	assert.Error(t, err)
}
