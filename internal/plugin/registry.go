package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu      sync.Mutex
	plugins map[string]Plugin
	order   []string // registration order
	started int      // plugins in order[:started] are initialized
	hooks   *hooks.Manager
	log     *logging.Logger
}

// NewRegistry creates a plugin registry.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		hooks:   hm,
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}
	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())
	r.log.Debug().Str("id", p.ID()).Msg("plugin registered")
	return nil
}

// InitAll initializes plugins in registration order. If one fails, the
// ones already initialized are closed again.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order[r.started:] {
		api := API{Hooks: r.hooks, Log: r.log.Sub(id)}
		if err := r.plugins[id].Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.started++
		r.log.Info().Str("id", id).Msg("plugin initialized")
	}
	return nil
}

// CloseAll closes initialized plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := r.started - 1; i >= 0; i-- {
		id := r.order[i]
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.started = 0
}

// Get returns a plugin by ID, or nil.
func (r *Registry) Get(id string) Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plugins[id]
}

// List returns plugin IDs in registration order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}
