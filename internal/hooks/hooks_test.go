package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func nop(context.Context, Payload) error { return nil }

func TestEmitRunsHandlersInOrder(t *testing.T) {
	m := testManager()

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		m.On(EventTurnDone, name, func(_ context.Context, p Payload) error {
			assert.Equal(t, EventTurnDone, p.Event)
			order = append(order, name)
			return nil
		})
	}

	m.Emit(context.Background(), EventTurnDone, nil)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestEmitSurvivesFailingHandlers(t *testing.T) {
	m := testManager()

	var reached bool
	m.On(EventGatewayStart, "error", func(context.Context, Payload) error {
		return errors.New("handler broke")
	})
	m.On(EventGatewayStart, "panic", func(context.Context, Payload) error {
		panic("boom")
	})
	m.On(EventGatewayStart, "last", func(context.Context, Payload) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventGatewayStart, nil) })
	assert.True(t, reached)
}

func TestEmitWithoutHandlers(t *testing.T) {
	assert.NotPanics(t, func() { testManager().Emit(context.Background(), EventGatewayStop, nil) })
}

func TestPayloadAccessors(t *testing.T) {
	var got Payload
	m := testManager()
	m.On(EventToolResult, "capture", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventToolResult, map[string]any{
		"tool":         "poiSearch",
		"beforeTokens": 900,
		"durationMs":   int64(12),
		"truncated":    true,
	})

	assert.Equal(t, "poiSearch", got.String("tool"))
	assert.Equal(t, 900, got.Int("beforeTokens"))
	assert.Equal(t, 12, got.Int("durationMs"))
	assert.True(t, got.Bool("truncated"))

	// Missing or mistyped keys read as zero values.
	assert.Empty(t, got.String("beforeTokens"))
	assert.Zero(t, got.Int("tool"))
	assert.False(t, got.Bool("missing"))
}

func TestOff(t *testing.T) {
	m := testManager()

	var removed, kept int
	m.On(EventGatewayStart, "remove-me", func(context.Context, Payload) error { removed++; return nil })
	m.On(EventGatewayStart, "keep-me", func(context.Context, Payload) error { kept++; return nil })

	m.Emit(context.Background(), EventGatewayStart, nil)
	m.Off(EventGatewayStart, "remove-me")
	m.Emit(context.Background(), EventGatewayStart, nil)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, m.Count(EventGatewayStart))

	m.Off(EventGatewayStart, "keep-me")
	assert.Zero(t, m.Count(EventGatewayStart))
	assert.Empty(t, m.Events())
}

func TestEmitAsyncAndWait(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for _, name := range []string{"a", "b"} {
		m.On(EventAgentEvicted, name, func(_ context.Context, p Payload) error {
			assert.Equal(t, "s1", p.String("sessionId"))
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventAgentEvicted, map[string]any{"sessionId": "s1"})
	m.Wait()
	assert.Equal(t, int32(2), count.Load())
}

func TestCountAndEvents(t *testing.T) {
	m := testManager()
	assert.Zero(t, m.Count(EventGatewayStart))

	m.On(EventTurnStart, "h1", nop)
	m.On(EventGatewayStart, "h1", nop)
	m.On(EventGatewayStart, "h2", nop)

	assert.Equal(t, 2, m.Count(EventGatewayStart))
	assert.Equal(t, []string{EventGatewayStart, EventTurnStart}, m.Events())
}

func TestAllEventsAreDistinct(t *testing.T) {
	require.NotEmpty(t, AllEvents)
	seen := map[string]bool{}
	for _, e := range AllEvents {
		assert.False(t, seen[e], "duplicate event %s", e)
		seen[e] = true
	}
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.On(EventTurnDone, "x", nop)
		m.Emit(context.Background(), EventTurnDone, nil)
		m.EmitAsync(context.Background(), EventTurnDone, nil)
		m.Off(EventTurnDone, "x")
		m.Wait()
	})
	assert.Zero(t, m.Count(EventTurnDone))
	assert.Nil(t, m.Events())
}
