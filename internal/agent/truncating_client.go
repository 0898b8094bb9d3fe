package agent

import (
	"context"

	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/soyeahso/wayfarer/internal/logging"
	"github.com/soyeahso/wayfarer/internal/truncate"
)

// DefaultMessageLimit bounds an outbound user message when none is configured.
const DefaultMessageLimit = 4000

// TruncatingClient decorates an llm.Client, shortening user messages
// (which also carry tool results) before they are sent upstream.
type TruncatingClient struct {
	inner     llm.Client
	maxLength int
	log       *logging.Logger
}

// NewTruncatingClient wraps inner. A non-positive maxLength selects
// DefaultMessageLimit.
func NewTruncatingClient(inner llm.Client, maxLength int, log *logging.Logger) *TruncatingClient {
	if maxLength <= 0 {
		maxLength = DefaultMessageLimit
	}
	return &TruncatingClient{inner: inner, maxLength: maxLength, log: log.Sub("llm.truncate")}
}

// Name returns the wrapped provider's name.
func (c *TruncatingClient) Name() string { return c.inner.Name() }

// Complete truncates and forwards.
func (c *TruncatingClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return c.inner.Complete(ctx, c.shorten(req))
}

// Stream truncates and forwards.
func (c *TruncatingClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	return c.inner.Stream(ctx, c.shorten(req))
}

// shorten returns req with a copied message slice; the caller's slice is
// never modified.
func (c *TruncatingClient) shorten(req llm.CompletionRequest) llm.CompletionRequest {
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	for i, m := range msgs {
		if m.Role != llm.RoleUser || !truncate.NeedsTruncation(m.Content, c.maxLength) {
			continue
		}
		msgs[i].Content = truncate.Truncate(m.Content, c.maxLength)
		c.log.Debug().
			Int("index", i).
			Int("beforeTokens", truncate.EstimateTokens(m.Content)).
			Int("afterTokens", truncate.EstimateTokens(msgs[i].Content)).
			Msg("outbound message truncated")
	}
	req.Messages = msgs
	return req
}
