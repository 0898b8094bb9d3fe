package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/wayfarer/internal/llm"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// FailoverClient is an llm.Client that walks the primary model and then its
// fallbacks until one provider accepts the request.
type FailoverClient struct {
	registry *llm.Registry
	models   []string // primary first
	log      *logging.Logger
}

// NewFailoverClient creates a client for primary with fallbacks tried in
// order on retryable errors (auth, rate limit, overload, 5xx).
func NewFailoverClient(registry *llm.Registry, primary string, fallbacks []string, log *logging.Logger) *FailoverClient {
	return &FailoverClient{
		registry: registry,
		models:   append([]string{primary}, fallbacks...),
		log:      log.Sub("failover"),
	}
}

// Name reports the primary model's provider.
func (f *FailoverClient) Name() string {
	if c, err := f.registry.Resolve(f.models[0]); err == nil {
		return c.Name()
	}
	return "failover"
}

func (f *FailoverClient) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return attempt(ctx, f, req, llm.Client.Complete)
}

// Stream fails over only while opening the stream. Text already relayed to
// the caller cannot be taken back, so mid-stream errors surface as events.
func (f *FailoverClient) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamEvent, error) {
	return attempt(ctx, f, req, llm.Client.Stream)
}

func attempt[T any](ctx context.Context, f *FailoverClient, req llm.CompletionRequest,
	call func(llm.Client, context.Context, llm.CompletionRequest) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for i, model := range f.models {
		client, err := f.registry.Resolve(model)
		if err != nil {
			f.log.Debug().Str("model", model).Err(err).Msg("no provider for model, skipping")
			lastErr = err
			continue
		}

		req.Model = model
		out, err := call(client, ctx, req)
		if err == nil {
			if i > 0 {
				f.log.Info().Str("model", model).Msg("served by fallback model")
			}
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) {
			return zero, err
		}
		f.log.Warn().Str("model", model).Err(err).Msg("retryable error, trying next model")
	}
	return zero, lastErr
}

var retryableCodes = map[int]bool{401: true, 403: true, 408: true, 429: true, 500: true, 502: true, 503: true, 504: true, 529: true}

// isRetryable reports whether another provider might succeed where this
// one failed.
func isRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) && retryableCodes[provErr.Code] {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"overloaded", "rate limit", "capacity", "timeout"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
