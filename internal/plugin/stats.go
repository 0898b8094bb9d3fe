package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// StatsID is the ID of the built-in stats plugin.
const StatsID = "stats"

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Since           time.Time      `json:"since"`
	Turns           map[string]int `json:"turns"` // by outcome
	ReplyChars      int            `json:"replyChars"`
	CacheHits       int            `json:"cacheHits"`
	CacheMisses     int            `json:"cacheMisses"`
	CacheBypassed   int            `json:"cacheBypassed"`
	Evictions       int            `json:"evictions"`
	ToolCalls       map[string]int `json:"toolCalls"`
	ToolsTruncated  int            `json:"toolsTruncated"`
	ToolTokensSaved int            `json:"toolTokensSaved"`
	Itineraries     int            `json:"itineraries"`
	SessionsDeleted int            `json:"sessionsDeleted"`
}

// CacheHitRate returns hits over cached lookups, or 0 with none.
func (s StatsSnapshot) CacheHitRate() float64 {
	if n := s.CacheHits + s.CacheMisses; n > 0 {
		return float64(s.CacheHits) / float64(n)
	}
	return 0
}

// Stats counts turn outcomes, agent cache behavior and tool truncation from
// hook events.
type Stats struct {
	mu   sync.Mutex
	snap StatsSnapshot

	api API
	log *logging.Logger
}

// NewStats creates an uninitialized stats plugin.
func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) ID() string { return StatsID }

// Init subscribes to the hook events it counts.
func (s *Stats) Init(_ context.Context, api API) error {
	s.api, s.log = api, api.Log
	s.mu.Lock()
	s.snap = StatsSnapshot{Since: time.Now(), Turns: map[string]int{}, ToolCalls: map[string]int{}}
	s.mu.Unlock()

	api.Hooks.On(hooks.EventTurnDone, StatsID, s.onTurnDone)
	api.Hooks.On(hooks.EventAgentInstance, StatsID, s.onInstance)
	api.Hooks.On(hooks.EventAgentEvicted, StatsID, s.count(func(p *StatsSnapshot) { p.Evictions++ }))
	api.Hooks.On(hooks.EventToolResult, StatsID, s.onToolResult)
	api.Hooks.On(hooks.EventItineraryUpdated, StatsID, s.count(func(p *StatsSnapshot) { p.Itineraries++ }))
	api.Hooks.On(hooks.EventSessionDeleted, StatsID, s.count(func(p *StatsSnapshot) { p.SessionsDeleted++ }))
	return nil
}

// Close unsubscribes and logs a summary.
func (s *Stats) Close() error {
	if s.api.Hooks == nil {
		return nil
	}
	for _, ev := range []string{
		hooks.EventTurnDone, hooks.EventAgentInstance, hooks.EventAgentEvicted,
		hooks.EventToolResult, hooks.EventItineraryUpdated, hooks.EventSessionDeleted,
	} {
		s.api.Hooks.Off(ev, StatsID)
	}

	snap := s.Snapshot()
	total := 0
	for _, n := range snap.Turns {
		total += n
	}
	s.log.Info().
		Int("turns", total).
		Int("completed", snap.Turns["completed"]).
		Float64("cacheHitRate", snap.CacheHitRate()).
		Int("toolsTruncated", snap.ToolsTruncated).
		Int("itineraries", snap.Itineraries).
		Dur("uptime", time.Since(snap.Since)).
		Msg("session stats")
	return nil
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snap
	out.Turns = make(map[string]int, len(s.snap.Turns))
	for k, v := range s.snap.Turns {
		out.Turns[k] = v
	}
	out.ToolCalls = make(map[string]int, len(s.snap.ToolCalls))
	for k, v := range s.snap.ToolCalls {
		out.ToolCalls[k] = v
	}
	return out
}

func (s *Stats) count(fn func(*StatsSnapshot)) hooks.Handler {
	return func(context.Context, hooks.Payload) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		fn(&s.snap)
		return nil
	}
}

func (s *Stats) onTurnDone(_ context.Context, p hooks.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Turns[p.String("outcome")]++
	s.snap.ReplyChars += p.Int("chars")
	return nil
}

func (s *Stats) onInstance(_ context.Context, p hooks.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case !p.Bool("cached"):
		s.snap.CacheBypassed++
	case p.Bool("hit"):
		s.snap.CacheHits++
	default:
		s.snap.CacheMisses++
	}
	return nil
}

func (s *Stats) onToolResult(_ context.Context, p hooks.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ToolCalls[p.String("tool")]++
	if p.Bool("truncated") {
		s.snap.ToolsTruncated++
		s.snap.ToolTokensSaved += p.Int("beforeTokens") - p.Int("afterTokens")
	}
	return nil
}
