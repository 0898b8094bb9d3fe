package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	mu       sync.Mutex
	requests []llm.CompletionRequest
	replies  [][]string
}

func (c *recordingClient) Name() string { return "recording" }

func (c *recordingClient) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "unused"}, nil
}

func (c *recordingClient) Stream(_ context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	i := len(c.requests) - 1
	if i >= len(c.replies) {
		return llm.StreamOf("…"), nil
	}
	return llm.StreamOf(c.replies[i]...), nil
}

func drain(ch <-chan llm.StreamEvent) (text string, last llm.StreamEvent) {
	var b strings.Builder
	for ev := range ch {
		if ev.Type == llm.EventDelta {
			b.WriteString(ev.Content)
			continue
		}
		last = ev
	}
	return b.String(), last
}

func TestFactoryBuildRejectsEmptySession(t *testing.T) {
	mem, _ := testMemory()
	f := NewFactory(&recordingClient{}, nil, mem, Limits{}, nil, InstanceOptions{}, silentLog())
	_, err := f.Build(context.Background(), "", "u1")
	assert.ErrorIs(t, err, ErrEmptySessionID)
}

func TestFactoryPreloadsHistory(t *testing.T) {
	mem, durable := testMemory()
	ctx := context.Background()
	require.NoError(t, durable.InsertSession(ctx, &domain.Session{ID: "s1", UserID: "u1", CreatedAt: time.Now(), ModifiedAt: time.Now()}))
	require.NoError(t, durable.InsertMessage(ctx, domain.Message{ID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "去杭州", CreatedAt: time.Now()}))

	f := NewFactory(&recordingClient{}, nil, mem, Limits{}, nil, InstanceOptions{}, silentLog())
	inst, err := f.Build(ctx, "s1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "s1", inst.SessionID())
	assert.Equal(t, "u1", inst.UserID())
	assert.Len(t, inst.Window().Messages(ctx), 1)
}

func TestInstanceStreamPlainAnswer(t *testing.T) {
	mem, _ := testMemory()
	client := &recordingClient{replies: [][]string{{"Day 1: ", "West Lake."}}}
	f := NewFactory(client, nil, mem, Limits{}, nil, InstanceOptions{MaxTokens: 800, MaxToolRounds: 1}, silentLog())

	ctx := context.Background()
	inst, err := f.Build(ctx, "s1", "u1")
	require.NoError(t, err)
	inst.Window().Add(ctx, domain.Message{ID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "plan Hangzhou"})

	ch, err := inst.Stream(ctx)
	require.NoError(t, err)
	text, last := drain(ch)

	assert.Equal(t, "Day 1: West Lake.", text)
	require.Equal(t, llm.EventDone, last.Type)
	assert.Equal(t, text, last.Response.Content)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, 800, req.MaxTokens)
	assert.Contains(t, req.System, "travel planning assistant")
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.Message{Role: "user", Content: "plan Hangzhou"}, req.Messages[0])
}

func TestInstanceStreamRunsOneToolRound(t *testing.T) {
	mem, _ := testMemory()
	reg := NewToolRegistry()
	reg.Register(echoTool{})

	client := &recordingClient{replies: [][]string{
		{"Let me check.", "\n```tool_call\n{\"tool\": \"echo\", \"input\": {\"text\":\"hi\"}}\n```\n"},
		{"Sunny ", "days."},
	}}
	f := NewFactory(client, reg, mem, Limits{Enabled: true}, nil, InstanceOptions{MaxToolRounds: 1}, silentLog())

	ctx := context.Background()
	inst, err := f.Build(ctx, "s1", "u1")
	require.NoError(t, err)
	inst.Window().Add(ctx, domain.Message{ID: "m1", SessionID: "s1", Role: domain.RoleUser, Content: "weather?"})

	ch, err := inst.Stream(ctx)
	require.NoError(t, err)
	text, last := drain(ch)

	assert.Equal(t, "Let me check.\n\nSunny days.", text)
	assert.NotContains(t, text, "tool_call")
	require.Equal(t, llm.EventDone, last.Type)
	assert.Equal(t, text, last.Response.Content)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Contains(t, second[2].Content, "### echo")
	assert.Contains(t, second[2].Content, `{"text":"hi"}`)
}

func TestInstanceStreamStopsAfterMaxToolRounds(t *testing.T) {
	mem, _ := testMemory()
	reg := NewToolRegistry()
	reg.Register(echoTool{})

	call := "```tool_call\n{\"tool\": \"echo\", \"input\": {}}\n```\n"
	client := &recordingClient{replies: [][]string{{call}, {"again ", call}}}
	f := NewFactory(client, reg, mem, Limits{}, nil, InstanceOptions{MaxToolRounds: 1}, silentLog())

	ctx := context.Background()
	inst, err := f.Build(ctx, "s1", "u1")
	require.NoError(t, err)

	ch, err := inst.Stream(ctx)
	require.NoError(t, err)
	text, last := drain(ch)

	assert.Equal(t, "\nagain \n", text)
	assert.Equal(t, llm.EventDone, last.Type)
	assert.Len(t, client.requests, 2)
}

func TestInstanceStreamRelaysUpstreamError(t *testing.T) {
	mem, _ := testMemory()
	client := &llm.MockClient{
		ProviderName: "mock",
		StreamFunc: func(context.Context, llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
			return llm.StreamThenFail("connection reset", "partial "), nil
		},
	}
	f := NewFactory(client, nil, mem, Limits{}, nil, InstanceOptions{}, silentLog())
	inst, err := f.Build(context.Background(), "s1", "u1")
	require.NoError(t, err)

	ch, err := inst.Stream(context.Background())
	require.NoError(t, err)
	text, last := drain(ch)
	assert.Equal(t, "partial ", text)
	assert.Equal(t, llm.EventError, last.Type)
	assert.Equal(t, "connection reset", last.Error)
}
