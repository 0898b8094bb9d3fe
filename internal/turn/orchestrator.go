// Package turn drives one conversational turn: it validates the user's
// text, resolves the session's agent, relays the model's tokens to the
// caller and finalizes the exchange in the background.
package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/wayfarer/internal/agent"
	"github.com/soyeahso/wayfarer/internal/domain"
	"github.com/soyeahso/wayfarer/internal/guardrail"
	"github.com/soyeahso/wayfarer/internal/hooks"
	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/store"
)

// DefaultFinalizeTimeout bounds the itinerary extraction of one turn.
const DefaultFinalizeTimeout = 10 * time.Second

// Instances resolves the agent bound to a session. *agent.InstanceCache
// implements it.
type Instances interface {
	Get(ctx context.Context, sessionID, userID string, opts ...agent.GetOption) (*agent.Instance, error)
}

// Options tunes an Orchestrator.
type Options struct {
	FinalizeTimeout time.Duration
	// SerializeSessions makes turns of the same session run one at a time.
	SerializeSessions bool
}

// Orchestrator runs turns. It is safe for concurrent use.
type Orchestrator struct {
	durable   store.Durable
	instances Instances
	extractor ItineraryExtractor
	hooks     *hooks.Manager
	opts      Options
	locks     *sessionLocks
	pending   sync.WaitGroup
	now       func() time.Time
	log       *logging.Logger
}

// New creates an Orchestrator. A nil extractor disables itinerary
// derivation.
func New(durable store.Durable, instances Instances, extractor ItineraryExtractor, hm *hooks.Manager, opts Options, log *logging.Logger) *Orchestrator {
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = DefaultFinalizeTimeout
	}
	o := &Orchestrator{
		durable:   durable,
		instances: instances,
		extractor: extractor,
		hooks:     hm,
		opts:      opts,
		now:       time.Now,
		log:       log.Sub("turn"),
	}
	if opts.SerializeSessions {
		o.locks = newSessionLocks()
	}
	return o
}

// Stream runs a turn and returns its event stream. The channel always ends
// with exactly one stop event unless ctx is cancelled first, and is closed
// afterwards. Cancelling ctx stops the relay; the turn is still persisted.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan Event {
	out := make(chan Event, 64)
	go o.run(ctx, req, out)
	return out
}

// Run runs a turn and returns the concatenated text it produced.
func (o *Orchestrator) Run(ctx context.Context, req Request) (string, error) {
	var sb strings.Builder
	for ev := range o.Stream(ctx, req) {
		if ev.Kind == KindText {
			sb.WriteString(ev.Text)
		}
	}
	if err := ctx.Err(); err != nil {
		return sb.String(), err
	}
	return sb.String(), nil
}

// Wait blocks until every background itinerary derivation has finished.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}

func (o *Orchestrator) run(ctx context.Context, req Request, out chan<- Event) {
	defer close(out)
	start := time.Now()
	if req.UserID == "" {
		req.UserID = domain.DefaultUserID
	}
	ctx = domain.WithIdentity(ctx, Identity{UserID: req.UserID, SessionID: req.SessionID})
	log := o.log.With("sessionId", req.SessionID).With("userId", req.UserID)

	emit := func(kind Kind, text string) bool {
		select {
		case out <- Event{Kind: kind, Text: text}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	finish := func(outcome string, chars int) {
		emit(KindStop, "")
		o.hooks.Emit(ctx, hooks.EventTurnDone, map[string]any{
			"sessionId":  req.SessionID,
			"userId":     req.UserID,
			"outcome":    outcome,
			"chars":      chars,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}

	// Validating
	if res := guardrail.Validate(req.Text); !res.Accepted() {
		log.Info().Str("reason", res.Rejection.Reason).Msg("input rejected")
		emit(KindText, res.Rejection.Reason)
		finish("rejected", 0)
		return
	}

	if o.locks != nil && req.SessionID != "" {
		unlock := o.locks.Lock(req.SessionID)
		defer unlock()
	}
	o.hooks.Emit(ctx, hooks.EventTurnStart, map[string]any{
		"sessionId": req.SessionID,
		"userId":    req.UserID,
	})

	// Resolving
	inst, userMsg, err := o.resolve(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("turn construction failed")
		emit(KindText, MsgConstructionFailed)
		finish("failed", 0)
		return
	}
	inst.Window().Add(ctx, userMsg)

	// Streaming
	var transcript strings.Builder
	relay := func(text string) bool {
		if !emit(KindText, text) {
			return false
		}
		transcript.WriteString(text)
		return true
	}
	outcome := "completed"
	if upstream := o.stream(ctx, inst, relay); upstream != nil {
		log.Warn().Err(upstream).Int("relayed", transcript.Len()).Msg("upstream stream failed")
		relay(Refine(upstream))
		outcome = "upstream_error"
	}
	if ctx.Err() != nil {
		outcome = "cancelled"
	}

	// Finalizing
	o.finalize(context.WithoutCancel(ctx), inst, transcript.String(), log)

	log.Info().
		Str("outcome", outcome).
		Int("chars", transcript.Len()).
		Dur("duration", time.Since(start)).
		Msg("turn finished")
	finish(outcome, transcript.Len())
}

// resolve loads or creates the session, appends the user message and
// returns the session's agent.
func (o *Orchestrator) resolve(ctx context.Context, req Request) (*agent.Instance, domain.Message, error) {
	if req.SessionID == "" {
		return nil, domain.Message{}, &ConstructionError{Stage: "session", Err: agent.ErrEmptySessionID}
	}
	text := strings.TrimSpace(req.Text)
	now := o.now()

	sess, err := o.durable.FindSession(ctx, req.SessionID)
	if err != nil {
		return nil, domain.Message{}, &ConstructionError{Stage: "session", Err: err}
	}
	if sess == nil {
		sess = &domain.Session{
			ID:         req.SessionID,
			UserID:     req.UserID,
			Title:      domain.TitleFrom(text),
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := o.durable.InsertSession(ctx, sess); err != nil {
			return nil, domain.Message{}, &ConstructionError{Stage: "session", Err: err}
		}
		o.log.Info().Str("sessionId", sess.ID).Str("title", sess.Title).Msg("session created")
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Role:      domain.RoleUser,
		Content:   text,
		CreatedAt: now,
	}
	if err := o.durable.InsertMessage(ctx, msg); err != nil {
		return nil, domain.Message{}, &ConstructionError{Stage: "persist", Err: err}
	}

	var opts []agent.GetOption
	if req.NoCache {
		opts = append(opts, agent.Bypass())
	}
	inst, err := o.instances.Get(ctx, req.SessionID, req.UserID, opts...)
	if err != nil {
		return nil, domain.Message{}, &ConstructionError{Stage: "agent", Err: err}
	}
	return inst, msg, nil
}

// stream relays the agent's text through relay and returns the upstream
// failure, if any. Cancellation is not a failure.
func (o *Orchestrator) stream(ctx context.Context, inst *agent.Instance, relay func(string) bool) error {
	events, err := inst.Stream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	for ev := range events {
		switch ev.Type {
		case llm.EventDelta:
			if !relay(ev.Content) {
				return nil
			}
		case llm.EventError:
			if ctx.Err() != nil {
				return nil
			}
			return &UpstreamError{Message: ev.Error}
		case llm.EventDone:
			if ev.Response != nil {
				o.log.Debug().
					Str("sessionId", inst.SessionID()).
					Str("model", ev.Response.Model).
					Int("inputTokens", ev.Response.Usage.InputTokens).
					Int("outputTokens", ev.Response.Usage.OutputTokens).
					Msg("stream done")
			}
		}
	}
	return nil
}

// finalize persists the assistant reply, writes the window back and starts
// the itinerary derivation. ctx must already be detached from the caller.
func (o *Orchestrator) finalize(ctx context.Context, inst *agent.Instance, reply string, log *logging.Logger) {
	msg := domain.Message{
		ID:        uuid.NewString(),
		SessionID: inst.SessionID(),
		Role:      domain.RoleAssistant,
		Content:   reply,
		CreatedAt: o.now(),
	}
	if err := o.durable.InsertMessage(ctx, msg); err != nil {
		log.Error().Err(err).Msg("persisting assistant message")
	}
	if err := o.durable.TouchSession(ctx, inst.SessionID()); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		log.Warn().Err(err).Msg("touching session")
	}
	inst.Window().Add(ctx, msg)

	if o.extractor == nil {
		return
	}
	o.pending.Add(1)
	go o.deriveItinerary(ctx, inst.SessionID(), reply, log)
}

func (o *Orchestrator) deriveItinerary(ctx context.Context, sessionID, reply string, log *logging.Logger) {
	defer o.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, o.opts.FinalizeTimeout)
	defer cancel()

	it, err := o.extractor.Extract(ctx, reply)
	if err != nil {
		log.Warn().Err(err).Msg("itinerary discarded")
		return
	}
	if err := o.durable.UpdateItinerary(ctx, sessionID, it.JSON()); err != nil {
		log.Error().Err(err).Msg("storing itinerary")
		return
	}
	log.Info().Int("days", len(it.DailyRoutes)).Msg("itinerary updated")
	o.hooks.Emit(ctx, hooks.EventItineraryUpdated, map[string]any{
		"sessionId": sessionID,
		"userId":    domain.IdentityFrom(ctx).UserID,
		"days":      len(it.DailyRoutes),
	})
}
