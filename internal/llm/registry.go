package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/wayfarer/internal/config"
	"github.com/soyeahso/wayfarer/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages LLM clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // model name → client
	order    []string          // registration order
	fallback string            // default model name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given model name. The first registration
// becomes the fallback.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.clients[name]; !exists {
		r.order = append(r.order, name)
	}
	r.clients[name] = client
	if r.fallback == "" {
		r.fallback = name
	}
	r.log.Info().Str("model", name).Str("provider", client.Name()).Msg("registered LLM client")
}

// SetFallback sets the model used when no exact match is found.
func (r *Registry) SetFallback(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = name
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact name → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns registered model names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// NewClient builds a single client for the configured provider kind.
func NewClient(cfg config.ProviderConfig) (Client, error) {
	return newClientForModel(cfg, cfg.Model)
}

func newClientForModel(cfg config.ProviderConfig, model string) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	switch cfg.Kind {
	case "", "openai":
		return NewOpenAIClient(OpenAIOptions{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   model,
			Timeout: timeout,
		}), nil
	case "ollama":
		return NewOllamaAPIClient(cfg.BaseURL, model, timeout), nil
	default:
		return nil, &config.ConfigError{Message: fmt.Sprintf("unknown provider kind %q", cfg.Kind)}
	}
}

// NewRegistryFromConfig registers the primary model followed by each
// configured fallback model on the same endpoint. The primary is the
// registry fallback.
func NewRegistryFromConfig(cfg config.ProviderConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)
	for _, model := range append([]string{cfg.Model}, cfg.Fallbacks...) {
		if model == "" {
			continue
		}
		client, err := newClientForModel(cfg, model)
		if err != nil {
			return nil, err
		}
		reg.Register(model, client)
	}
	if len(reg.List()) == 0 {
		return nil, &config.ConfigError{Message: "provider.model is required"}
	}
	return reg, nil
}
