package agent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/memory"
)

// ErrEmptySessionID is returned when an instance is requested without a session.
var ErrEmptySessionID = errors.New("agent: session id must not be empty")

// InstanceOptions tunes every instance a Factory builds.
type InstanceOptions struct {
	MaxTokens     int
	Temperature   *float64
	MaxToolRounds int // tool execution rounds per turn
	MaxHistory    int // messages in the memory window
	ExtraPrompt   string
}

// Builder constructs agent instances. The cache calls it on a miss and on
// bypass.
type Builder interface {
	Build(ctx context.Context, sessionID, userID string) (*Instance, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, sessionID, userID string) (*Instance, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, sessionID, userID string) (*Instance, error) {
	return f(ctx, sessionID, userID)
}

// Factory is the production Builder. It shares one client and one tool
// source among all instances and binds a per-session memory window.
type Factory struct {
	client llm.Client
	tools  ToolSource
	memory *memory.Store
	limits Limits
	hooks  *hooks.Manager
	opts   InstanceOptions
	log    *logging.Logger
}

// NewFactory creates a Factory. The client is normally a TruncatingClient
// around a FailoverClient.
func NewFactory(client llm.Client, tools ToolSource, mem *memory.Store, limits Limits, hm *hooks.Manager, opts InstanceOptions, log *logging.Logger) *Factory {
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = memory.DefaultMaxMessages
	}
	return &Factory{
		client: client,
		tools:  tools,
		memory: mem,
		limits: limits,
		hooks:  hm,
		opts:   opts,
		log:    log.Sub("agent"),
	}
}

// Build creates an instance for the session and preloads its history.
func (f *Factory) Build(ctx context.Context, sessionID, userID string) (*Instance, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}
	tools := GuardTools(ctx, f.tools, f.limits, f.hooks, f.log)
	window := f.memory.Window(sessionID, f.opts.MaxHistory)
	preloaded := len(window.Messages(ctx))

	f.log.Debug().
		Str("sessionId", sessionID).
		Str("userId", userID).
		Int("tools", tools.Len()).
		Int("history", preloaded).
		Msg("agent instance built")

	return &Instance{
		sessionID: sessionID,
		userID:    userID,
		client:    f.client,
		tools:     tools,
		window:    window,
		system:    BuildSystemPrompt(PromptConfig{Tools: tools.Specs(), ExtraPrompt: f.opts.ExtraPrompt}),
		opts:      f.opts,
		createdAt: time.Now(),
		log:       f.log,
	}, nil
}

// Instance is a conversational agent bound to one session. It is safe for
// concurrent use; all mutable state lives in the memory window.
type Instance struct {
	sessionID string
	userID    string
	client    llm.Client
	tools     *ToolSet
	window    *memory.Window
	system    string
	opts      InstanceOptions
	createdAt time.Time
	log       *logging.Logger
}

func (i *Instance) SessionID() string      { return i.sessionID }
func (i *Instance) UserID() string         { return i.userID }
func (i *Instance) Window() *memory.Window { return i.window }
func (i *Instance) Tools() *ToolSet        { return i.tools }
func (i *Instance) CreatedAt() time.Time   { return i.createdAt }

// Stream answers the conversation currently held in the memory window.
// Tool calls are executed between model rounds and never reach the
// caller. The returned channel carries text deltas and ends with one
// done or error event; the done response's content is exactly the
// concatenation of the relayed deltas.
func (i *Instance) Stream(ctx context.Context) (<-chan llm.StreamEvent, error) {
	req := llm.CompletionRequest{
		System:      i.system,
		Messages:    toLLMMessages(i.window.Messages(ctx)),
		MaxTokens:   i.opts.MaxTokens,
		Temperature: i.opts.Temperature,
	}
	first, err := i.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.StreamEvent, 64)
	go i.relay(ctx, req, first, out)
	return out, nil
}

func (i *Instance) relay(ctx context.Context, req llm.CompletionRequest, ch <-chan llm.StreamEvent, out chan<- llm.StreamEvent) {
	defer close(out)

	var (
		clean strings.Builder
		last  *llm.CompletionResponse
	)
	emit := func(text string) bool {
		if text == "" {
			return true
		}
		clean.WriteString(text)
		return sendEvent(ctx, out, llm.StreamEvent{Type: llm.EventDelta, Content: text})
	}

	for round := 0; ; round++ {
		var raw strings.Builder
		filter := &fenceFilter{}
		for ev := range ch {
			switch ev.Type {
			case llm.EventDelta:
				raw.WriteString(ev.Content)
				if !emit(filter.Write(ev.Content)) {
					return
				}
			case llm.EventDone:
				last = ev.Response
			case llm.EventError:
				if emit(filter.Flush()) {
					sendEvent(ctx, out, ev)
				}
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if !emit(filter.Flush()) {
			return
		}

		calls := parseToolCalls(raw.String())
		if len(calls) == 0 || round >= i.opts.MaxToolRounds {
			break
		}

		i.log.Info().
			Str("sessionId", i.sessionID).
			Int("toolCalls", len(calls)).
			Int("round", round+1).
			Msg("executing tool calls")
		results := executeToolCalls(ctx, i.tools, calls)
		req.Messages = append(req.Messages,
			llm.Message{Role: llm.RoleAssistant, Content: raw.String()},
			llm.Message{Role: llm.RoleUser, Content: formatToolResults(results)},
		)

		next, err := i.client.Stream(ctx, req)
		if err != nil {
			sendEvent(ctx, out, llm.StreamEvent{Type: llm.EventError, Error: err.Error()})
			return
		}
		ch = next
	}

	final := &llm.CompletionResponse{Content: clean.String()}
	if last != nil {
		final.Model = last.Model
		final.StopReason = last.StopReason
		final.Usage = last.Usage
	}
	sendEvent(ctx, out, llm.StreamEvent{Type: llm.EventDone, Response: final})
}

func sendEvent(ctx context.Context, ch chan<- llm.StreamEvent, ev llm.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role.String(), Content: m.Content})
	}
	return out
}
