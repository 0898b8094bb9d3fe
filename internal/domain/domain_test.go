package domain

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleFromString(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"ASSISTANT", RoleAssistant},
		{" system ", RoleSystem},
		{"tool", RoleUser},
		{"", RoleUser},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromString(tt.in))
		})
	}
}

func TestRoleJSON(t *testing.T) {
	msg := Message{ID: "m1", Role: RoleAssistant, Content: "hi"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"role":"assistant"`)

	var back Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"mystery"}`), &back))
	assert.Equal(t, RoleUser, back.Role)
}

func TestAllSystem(t *testing.T) {
	assert.False(t, AllSystem(nil))
	assert.True(t, AllSystem([]Message{{Role: RoleSystem}, {Role: RoleSystem}}))
	assert.False(t, AllSystem([]Message{{Role: RoleSystem}, {Role: RoleUser}}))
}

func TestTitleFrom(t *testing.T) {
	assert.Equal(t, "查询北京三天的行程", TitleFrom("查询北京三天的行程"))
	assert.Equal(t, "我想去上海玩五天，请", TitleFrom("我想去上海玩五天，请帮我规划"))
	assert.Equal(t, "short", TitleFrom("short"))
	assert.LessOrEqual(t, len([]rune(TitleFrom("abcdefghijklmnop"))), 10)
}

func TestParseItinerary(t *testing.T) {
	t.Run("single point", func(t *testing.T) {
		it, err := ParseItinerary(`{"dailyRoutes":[{"points":[{"keyword":"故宫","city":"北京"}]}]}`)
		require.NoError(t, err)
		require.Len(t, it.DailyRoutes, 1)
		assert.Equal(t, RoutePoint{Keyword: "故宫", City: "北京"}, it.DailyRoutes[0].Points[0])
	})

	t.Run("empty routes rejected", func(t *testing.T) {
		_, err := ParseItinerary(`{"dailyRoutes":[]}`)
		assert.ErrorIs(t, err, ErrEmptyItinerary)
	})

	t.Run("empty days rejected", func(t *testing.T) {
		for _, raw := range []string{
			`{"dailyRoutes":[null]}`,
			`{"dailyRoutes":[{}]}`,
			`{"dailyRoutes":[{"points":[]}]}`,
			`{"dailyRoutes":[{"points":[{"keyword":"A","city":"x"}]},{"points":null}]}`,
		} {
			_, err := ParseItinerary(raw)
			assert.ErrorIs(t, err, ErrEmptyDay, raw)
		}
	})

	t.Run("missing key rejected", func(t *testing.T) {
		_, err := ParseItinerary(`{"routes":[1]}`)
		assert.Error(t, err)
	})

	t.Run("not an array rejected", func(t *testing.T) {
		_, err := ParseItinerary(`{"dailyRoutes":{"points":[]}}`)
		assert.Error(t, err)
	})

	t.Run("malformed rejected", func(t *testing.T) {
		_, err := ParseItinerary(`{"dailyRoutes":[{"points":`)
		assert.Error(t, err)
		_, err = ParseItinerary("")
		assert.Error(t, err)
	})

	t.Run("fenced with trailing comma", func(t *testing.T) {
		raw := "```json\n{\n  // day one\n  \"dailyRoutes\": [{\"points\": [{\"keyword\": \"外滩\", \"city\": \"上海\"},]},]\n}\n```"
		it, err := ParseItinerary(raw)
		require.NoError(t, err)
		assert.Equal(t, "外滩", it.DailyRoutes[0].Points[0].Keyword)
	})

	t.Run("order preserved", func(t *testing.T) {
		it, err := ParseItinerary(`{"dailyRoutes":[{"points":[{"keyword":"A","city":"x"},{"keyword":"B","city":"x"}]},{"points":[{"keyword":"C","city":"y"}]}]}`)
		require.NoError(t, err)
		assert.Equal(t, "A", it.DailyRoutes[0].Points[0].Keyword)
		assert.Equal(t, "B", it.DailyRoutes[0].Points[1].Keyword)
		assert.Equal(t, "C", it.DailyRoutes[1].Points[0].Keyword)
		assert.JSONEq(t, `{"dailyRoutes":[{"points":[{"keyword":"A","city":"x"},{"keyword":"B","city":"x"}]},{"points":[{"keyword":"C","city":"y"}]}]}`, it.JSON())
	})
}

func TestIdentityContext(t *testing.T) {
	assert.Equal(t, Identity{}, IdentityFrom(context.Background()))

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", SessionID: "s1"})
	got := IdentityFrom(ctx)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "s1", got.SessionID)
}
