// Package hooks dispatches Wayfarer lifecycle and metrics events to named
// handlers. A nil *Manager is valid and drops every event.
package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/wayfarer/internal/logging"
)

const (
	EventTurnStart        = "turn.start"
	EventTurnDone         = "turn.done"
	EventAgentInstance    = "agent.instance"
	EventAgentEvicted     = "agent.evicted"
	EventToolResult       = "tool.result"
	EventItineraryUpdated = "itinerary.updated"
	EventSessionDeleted   = "session.deleted"
	EventGatewayStart     = "gateway.start"
	EventGatewayStop      = "gateway.stop"
)

// AllEvents lists every event the core emits.
var AllEvents = []string{
	EventTurnStart,
	EventTurnDone,
	EventAgentInstance,
	EventAgentEvicted,
	EventToolResult,
	EventItineraryUpdated,
	EventSessionDeleted,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to handlers.
type Payload struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// String returns Data[key] if it is a string.
func (p Payload) String(key string) string {
	s, _ := p.Data[key].(string)
	return s
}

// Int returns Data[key] as an int. int64 values (durations in ms) are
// narrowed.
func (p Payload) Int(key string) int {
	switch v := p.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Bool returns Data[key] if it is a bool.
func (p Payload) Bool(key string) bool {
	b, _ := p.Data[key].(bool)
	return b
}

// Handler handles one event. A returned error is logged; later handlers
// still run.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name string
	fn   Handler
}

// Manager holds handler registrations.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup // EmitAsync handlers
	log      *logging.Logger
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, fn: handler})
	m.mu.Unlock()
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.handlers[event][:0:0]
	for _, h := range m.handlers[event] {
		if h.name != name {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(m.handlers, event)
		return
	}
	m.handlers[event] = kept
}

// Emit runs the handlers for event in registration order on the caller's
// goroutine.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.call(ctx, h, p)
	}
}

// EmitAsync runs each handler for event on its own goroutine and returns
// immediately. Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	p := Payload{Event: event, Data: data}
	for _, h := range m.snapshot(event) {
		m.inflight.Add(1)
		go func() {
			defer m.inflight.Done()
			m.call(ctx, h, p)
		}()
	}
}

// Wait blocks until every handler started by EmitAsync has returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.inflight.Wait()
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the sorted events that have at least one handler.
func (m *Manager) Events() []string {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	events := make([]string, 0, len(m.handlers))
	for event := range m.handlers {
		events = append(events, event)
	}
	m.mu.RUnlock()
	sort.Strings(events)
	return events
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// call runs one handler. A panicking handler is logged like a failing one.
func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return h.fn(ctx, p)
	}()
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Msg("hook handler failed")
	}
}
