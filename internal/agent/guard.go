package agent

import (
	"context"
	"time"

	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/truncate"
)

// DefaultToolResultLimit applies when no per-tool override is configured.
const DefaultToolResultLimit = 2000

// Limits bounds tool result length.
type Limits struct {
	Enabled bool
	Default int
	PerTool map[string]int
}

// LimitsFromConfig converts the truncation config section.
func LimitsFromConfig(cfg config.TruncationConfig) Limits {
	return Limits{
		Enabled: cfg.TruncationEnabled(),
		Default: cfg.MaxLength,
		PerTool: cfg.ToolLimits,
	}
}

// For returns the limit for the named tool.
func (l Limits) For(name string) int {
	if n, ok := l.PerTool[name]; ok && n > 0 {
		return n
	}
	if l.Default > 0 {
		return l.Default
	}
	return DefaultToolResultLimit
}

// ToolSet is the guarded view of a ToolSource handed to an agent instance.
type ToolSet struct {
	specs []ToolSpec
	tools map[string]*guardedTool
}

// GuardTools wraps every tool the source lists so that results are
// truncated and measured. A nil source, or one that fails to list, yields
// an empty set.
func GuardTools(ctx context.Context, source ToolSource, limits Limits, hm *hooks.Manager, log *logging.Logger) *ToolSet {
	set := &ToolSet{tools: make(map[string]*guardedTool)}
	if source == nil {
		return set
	}
	log = log.Sub("tools.guard")
	specs, err := source.ListTools(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("listing tools failed, continuing without tools")
		return set
	}
	for _, spec := range specs {
		set.specs = append(set.specs, spec)
		set.tools[spec.Name] = &guardedTool{
			spec:   spec,
			source: source,
			limit:  limits.For(spec.Name),
			on:     limits.Enabled,
			hooks:  hm,
			log:    log,
		}
	}
	return set
}

// Specs returns the guarded tools' definitions.
func (s *ToolSet) Specs() []ToolSpec { return s.specs }

// Len returns the number of tools.
func (s *ToolSet) Len() int { return len(s.tools) }

// Get returns a guarded tool by name.
func (s *ToolSet) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	if !ok {
		return nil, false
	}
	return t, true
}

type guardedTool struct {
	spec   ToolSpec
	source ToolSource
	limit  int
	on     bool
	hooks  *hooks.Manager
	log    *logging.Logger
}

func (g *guardedTool) Name() string        { return g.spec.Name }
func (g *guardedTool) Description() string { return g.spec.Description }
func (g *guardedTool) InputSchema() string { return g.spec.InputSchema }

func (g *guardedTool) Execute(ctx context.Context, input string) (string, error) {
	start := time.Now()
	raw, err := g.source.ExecuteTool(ctx, ToolRequest{Name: g.spec.Name, Input: input})
	if err != nil {
		return "", err
	}

	out := raw
	if g.on && truncate.NeedsTruncation(raw, g.limit) {
		out = truncate.Truncate(raw, g.limit)
	}

	id := domain.IdentityFrom(ctx)
	before, after := truncate.EstimateTokens(raw), truncate.EstimateTokens(out)
	if len(out) != len(raw) {
		g.log.Info().
			Str("tool", g.spec.Name).
			Str("sessionId", id.SessionID).
			Int("beforeTokens", before).
			Int("afterTokens", after).
			Msg("tool result truncated")
	}
	g.hooks.Emit(ctx, hooks.EventToolResult, map[string]any{
		"tool":         g.spec.Name,
		"userId":       id.UserID,
		"sessionId":    id.SessionID,
		"beforeTokens": before,
		"afterTokens":  after,
		"beforeLen":    len([]rune(raw)),
		"afterLen":     len([]rune(out)),
		"truncated":    len(out) != len(raw),
		"durationMs":   time.Since(start).Milliseconds(),
	})
	return out, nil
}
