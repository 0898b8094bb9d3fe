package agent

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/soyeahso/wayfarer/internal/logging"
)

// Tool is a capability the agent can invoke during a conversation.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the LLM.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() string

	// Execute runs the tool with the given JSON input and returns its text output.
	Execute(ctx context.Context, input string) (string, error)
}

// ToolSpec is a serializable tool definition for passing to the LLM.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}

// ToolRequest is one tool invocation.
type ToolRequest struct {
	Name  string `json:"name"`
	Input string `json:"input"` // JSON arguments
}

// ToolSource discovers and executes tools. The in-process ToolRegistry and
// the MCP client both implement it.
type ToolSource interface {
	ListTools(ctx context.Context) ([]ToolSpec, error)
	ExecuteTool(ctx context.Context, req ToolRequest) (string, error)
}

// ToolRegistry holds in-process tools.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates an empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds a tool.
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns LLM-ready tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolSpec {
	defs := make([]ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	slices.SortFunc(defs, func(a, b ToolSpec) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// ListTools implements ToolSource.
func (r *ToolRegistry) ListTools(context.Context) ([]ToolSpec, error) {
	return r.Definitions(), nil
}

// ExecuteTool implements ToolSource.
func (r *ToolRegistry) ExecuteTool(ctx context.Context, req ToolRequest) (string, error) {
	t, ok := r.Get(req.Name)
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", req.Name)
	}
	return t.Execute(ctx, req.Input)
}

// MultiSource merges several sources. A source that fails to list is
// logged and skipped; on a name clash the earlier source wins.
type MultiSource struct {
	sources []ToolSource
	log     *logging.Logger

	mu    sync.RWMutex
	owner map[string]ToolSource
}

// NewMultiSource combines sources in priority order. Nil sources are ignored.
func NewMultiSource(log *logging.Logger, sources ...ToolSource) *MultiSource {
	m := &MultiSource{log: log.Sub("tools"), owner: make(map[string]ToolSource)}
	for _, s := range sources {
		if s != nil {
			m.sources = append(m.sources, s)
		}
	}
	return m
}

// ListTools implements ToolSource.
func (m *MultiSource) ListTools(ctx context.Context) ([]ToolSpec, error) {
	var specs []ToolSpec
	owner := make(map[string]ToolSource)
	for _, s := range m.sources {
		list, err := s.ListTools(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("tool source unavailable, skipping")
			continue
		}
		for _, spec := range list {
			if _, dup := owner[spec.Name]; dup {
				m.log.Warn().Str("tool", spec.Name).Msg("duplicate tool name, keeping first")
				continue
			}
			owner[spec.Name] = s
			specs = append(specs, spec)
		}
	}
	m.mu.Lock()
	m.owner = owner
	m.mu.Unlock()
	return specs, nil
}

// ExecuteTool implements ToolSource. ListTools must have run first.
func (m *MultiSource) ExecuteTool(ctx context.Context, req ToolRequest) (string, error) {
	m.mu.RLock()
	s, ok := m.owner[req.Name]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", req.Name)
	}
	return s.ExecuteTool(ctx, req)
}
