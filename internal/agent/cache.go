package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// DefaultCacheCapacity bounds the cache when no capacity is configured.
const DefaultCacheCapacity = 100

// BypassPolicy decides whether a request skips the cache entirely.
type BypassPolicy interface {
	Bypass(userID, sessionID string) bool
}

// NeverBypass always uses the cache.
type NeverBypass struct{}

func (NeverBypass) Bypass(string, string) bool { return false }

// PercentBypass routes a stable share of (user, session) pairs around the
// cache, for comparing cached and uncached latency.
type PercentBypass int

func (p PercentBypass) Bypass(userID, sessionID string) bool {
	switch {
	case p <= 0:
		return false
	case p >= 100:
		return true
	}
	return xxhash.Sum64String(userID+":"+sessionID)%100 < uint64(p)
}

// CacheOptions configures an InstanceCache.
type CacheOptions struct {
	Capacity          int
	ExpireAfterWrite  time.Duration
	ExpireAfterAccess time.Duration // zero disables idle expiry
	SweepSchedule     string        // cron expression; empty disables the sweeper
	Bypass            BypassPolicy
	Now               func() time.Time
}

type getOptions struct {
	bypass bool
}

// GetOption modifies a single Get call.
type GetOption func(*getOptions)

// Bypass builds a fresh instance without reading or populating the cache.
func Bypass() GetOption {
	return func(o *getOptions) { o.bypass = true }
}

// flight tracks one build so an invalidation that lands mid-build keeps
// the result out of the cache.
type flight struct {
	userID      string
	invalidated bool
}

type cacheEntry struct {
	inst       *Instance
	lastAccess atomic.Int64 // unix nanos
}

func (e *cacheEntry) touch(t time.Time) { e.lastAccess.Store(t.UnixNano()) }

// InstanceCache keeps one agent instance per session. Entries expire a
// fixed time after creation and after a period without access, whichever
// comes first. Concurrent misses for one session share a single build.
type InstanceCache struct {
	builder Builder
	lru     *expirable.LRU[string, *cacheEntry]
	group   singleflight.Group
	idle    time.Duration
	bypass  BypassPolicy
	hooks   *hooks.Manager
	log     *logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	byUser   map[string]map[string]struct{}
	inflight map[string]*flight // builds in progress, by session

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewInstanceCache creates a cache and starts its idle sweeper. Call Close
// to stop it.
func NewInstanceCache(builder Builder, opts CacheOptions, hm *hooks.Manager, log *logging.Logger) (*InstanceCache, error) {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCacheCapacity
	}
	if opts.Bypass == nil {
		opts.Bypass = NeverBypass{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepSchedule != "" && !gronx.New().IsValid(opts.SweepSchedule) {
		return nil, &invalidScheduleError{expr: opts.SweepSchedule}
	}

	c := &InstanceCache{
		builder: builder,
		idle:    opts.ExpireAfterAccess,
		bypass:  opts.Bypass,
		hooks:   hm,
		log:     log.Sub("agent.cache"),
		now:     opts.Now,
		byUser:   make(map[string]map[string]struct{}),
		inflight: make(map[string]*flight),
		stop:     make(chan struct{}),
	}
	c.lru = expirable.NewLRU[string, *cacheEntry](opts.Capacity, c.onEvict, opts.ExpireAfterWrite)

	if opts.SweepSchedule != "" && c.idle > 0 {
		c.done = make(chan struct{})
		go c.sweepLoop(opts.SweepSchedule)
	}
	return c, nil
}

type invalidScheduleError struct{ expr string }

func (e *invalidScheduleError) Error() string {
	return "agent cache: invalid sweep schedule " + e.expr
}

// Get returns the session's instance, building it on a miss.
func (c *InstanceCache) Get(ctx context.Context, sessionID, userID string, opts ...GetOption) (*Instance, error) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := c.now()

	if o.bypass || c.bypass.Bypass(userID, sessionID) {
		inst, err := c.builder.Build(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		c.record(ctx, sessionID, userID, false, false, start)
		return inst, nil
	}

	if inst, ok := c.lookup(sessionID); ok {
		c.record(ctx, sessionID, userID, true, true, start)
		return inst, nil
	}

	built := false
	v, err, _ := c.group.Do(sessionID, func() (any, error) {
		// a caller that missed just before the previous flight finished
		// lands here; it must not build twice
		if inst, ok := c.lookup(sessionID); ok {
			return inst, nil
		}
		built = true
		f := c.beginFlight(sessionID, userID)
		inst, err := c.builder.Build(context.WithoutCancel(ctx), sessionID, userID)
		if err != nil {
			c.endFlight(sessionID, f)
			return nil, err
		}
		e := &cacheEntry{inst: inst}
		e.touch(c.now())
		c.index(userID, sessionID)
		c.lru.Add(sessionID, e)
		// Checked after Add: an Invalidate either marked the flight or ran
		// after it ended and removed the entry itself.
		if !c.endFlight(sessionID, f) {
			c.lru.Remove(sessionID)
			c.log.Debug().Str("sessionId", sessionID).Msg("instance invalidated during build, not cached")
		}
		return inst, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers that waited on another caller's build count as hits.
	c.record(ctx, sessionID, userID, true, !built, start)
	return v.(*Instance), nil
}

func (c *InstanceCache) beginFlight(sessionID, userID string) *flight {
	f := &flight{userID: userID}
	c.mu.Lock()
	c.inflight[sessionID] = f
	c.mu.Unlock()
	return f
}

// endFlight reports whether the build may be cached.
func (c *InstanceCache) endFlight(sessionID string, f *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[sessionID] == f {
		delete(c.inflight, sessionID)
	}
	return !f.invalidated
}

func (c *InstanceCache) lookup(sessionID string) (*Instance, bool) {
	e, ok := c.lru.Get(sessionID)
	if !ok {
		return nil, false
	}
	now := c.now()
	if c.idleExpired(e, now) {
		c.lru.Remove(sessionID)
		return nil, false
	}
	e.touch(now)
	return e.inst, true
}

func (c *InstanceCache) idleExpired(e *cacheEntry, now time.Time) bool {
	return c.idle > 0 && now.Sub(time.Unix(0, e.lastAccess.Load())) > c.idle
}

// Invalidate drops the session's instance if present. A build already in
// progress still answers its callers but is not cached.
func (c *InstanceCache) Invalidate(sessionID string) {
	c.mu.Lock()
	if f, ok := c.inflight[sessionID]; ok {
		f.invalidated = true
	}
	c.mu.Unlock()
	c.group.Forget(sessionID)
	c.lru.Remove(sessionID)
}

// InvalidateAll drops every cached instance belonging to the user.
func (c *InstanceCache) InvalidateAll(userID string) int {
	c.mu.Lock()
	ids := make([]string, 0, len(c.byUser[userID]))
	for id := range c.byUser[userID] {
		ids = append(ids, id)
	}
	for id, f := range c.inflight {
		if f.userID == userID {
			f.invalidated = true
			c.group.Forget(id)
		}
	}
	c.mu.Unlock()

	n := 0
	for _, id := range ids {
		if c.lru.Remove(id) {
			n++
		}
	}
	return n
}

// Len returns the number of cached instances, including any that have
// expired but not yet been reaped.
func (c *InstanceCache) Len() int { return c.lru.Len() }

// Sweep removes idle entries and reports how many were dropped.
func (c *InstanceCache) Sweep() int {
	now := c.now()
	n := 0
	for _, id := range c.lru.Keys() {
		e, ok := c.lru.Peek(id)
		if !ok || !c.idleExpired(e, now) {
			continue
		}
		if c.lru.Remove(id) {
			n++
		}
	}
	return n
}

// Close stops the sweeper and drops every entry. It is safe to call more
// than once.
func (c *InstanceCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		if c.done != nil {
			<-c.done
		}
		c.lru.Purge()
	})
	return nil
}

func (c *InstanceCache) sweepLoop(schedule string) {
	defer close(c.done)
	for {
		next, err := gronx.NextTickAfter(schedule, time.Now(), false)
		if err != nil {
			c.log.Warn().Err(err).Str("schedule", schedule).Msg("sweep schedule has no next tick, sweeper stopped")
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-c.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		if n := c.Sweep(); n > 0 {
			c.log.Debug().Int("evicted", n).Msg("idle agent instances swept")
		}
	}
}

// onEvict runs under the LRU's lock and must not call back into it.
func (c *InstanceCache) onEvict(sessionID string, e *cacheEntry) {
	userID := e.inst.UserID()
	c.unindex(userID, sessionID)
	c.log.Debug().Str("sessionId", sessionID).Str("userId", userID).Msg("agent instance evicted")
	c.hooks.EmitAsync(context.Background(), hooks.EventAgentEvicted, map[string]any{
		"sessionId": sessionID,
		"userId":    userID,
	})
}

func (c *InstanceCache) index(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byUser[userID]
	if !ok {
		set = make(map[string]struct{})
		c.byUser[userID] = set
	}
	set[sessionID] = struct{}{}
}

func (c *InstanceCache) unindex(userID, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set := c.byUser[userID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(c.byUser, userID)
	}
}

func (c *InstanceCache) record(ctx context.Context, sessionID, userID string, cached, hit bool, start time.Time) {
	elapsed := c.now().Sub(start)
	c.log.Debug().
		Str("sessionId", sessionID).
		Bool("cached", cached).
		Bool("hit", hit).
		Dur("duration", elapsed).
		Msg("agent instance resolved")
	c.hooks.Emit(ctx, hooks.EventAgentInstance, map[string]any{
		"sessionId":  sessionID,
		"userId":     userID,
		"cached":     cached,
		"hit":        hit,
		"durationMs": elapsed.Milliseconds(),
	})
}
