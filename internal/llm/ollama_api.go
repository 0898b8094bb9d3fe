package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/wayfarer/internal/version"
)

const providerOllama = "ollama"

// OllamaAPIClient is a direct HTTP client for Ollama's chat API.
type OllamaAPIClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaAPIClient creates a new Ollama API client.
// baseURL should be like "http://localhost:11434"
func NewOllamaAPIClient(baseURL, model string, timeout time.Duration) *OllamaAPIClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaAPIClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (o *OllamaAPIClient) Name() string { return providerOllama }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
	Error           string  `json:"error"`
}

func (o *OllamaAPIClient) buildRequest(req CompletionRequest, stream bool) ollamaChatRequest {
	msgs := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: req.System})
	}
	msgs = append(msgs, req.Messages...)

	model := req.Model
	if model == "" {
		model = o.model
	}
	body := ollamaChatRequest{Model: model, Messages: msgs, Stream: stream}
	if req.ResponseFormat == ResponseFormatJSON {
		body.Format = "json"
	}
	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		opts["temperature"] = *req.Temperature
	}
	if len(opts) > 0 {
		body.Options = opts
	}
	return body
}

func (o *OllamaAPIClient) post(ctx context.Context, body ollamaChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, requestError(providerOllama, err)
	}
	if err := checkStatus(providerOllama, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (r ollamaChatResponse) completion(content string, start time.Time) *CompletionResponse {
	return &CompletionResponse{
		Content:    content,
		StopReason: r.DoneReason,
		Model:      r.Model,
		Usage:      Usage{InputTokens: r.PromptEvalCount, OutputTokens: r.EvalCount},
		Duration:   time.Since(start),
	}
}

// Complete sends a non-streaming chat request.
func (o *OllamaAPIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	resp, err := o.post(ctx, o.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Error != "" {
		return nil, &ProviderError{Provider: providerOllama, Message: result.Error}
	}
	return result.completion(result.Message.Content, start), nil
}

// Stream sends a streaming chat request. Ollama frames the stream as
// newline-delimited JSON objects, the last of which has done=true.
func (o *OllamaAPIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	start := time.Now()
	resp, err := o.post(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		var full strings.Builder
		scanner := newLineScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				send(ctx, ch, StreamEvent{Type: EventError, Error: (&ProviderError{Provider: providerOllama, Message: chunk.Error}).Error()})
				return
			}
			if chunk.Message.Content != "" {
				full.WriteString(chunk.Message.Content)
				if !send(ctx, ch, StreamEvent{Type: EventDelta, Content: chunk.Message.Content}) {
					return
				}
			}
			if chunk.Done {
				send(ctx, ch, StreamEvent{Type: EventDone, Response: chunk.completion(full.String(), start)})
				return
			}
		}
		if err := scanner.Err(); err != nil {
			send(ctx, ch, StreamEvent{Type: EventError, Error: requestError(providerOllama, err).Error()})
			return
		}
		send(ctx, ch, StreamEvent{Type: EventError, Error: "ollama: stream ended without done"})
	}()
	return ch, nil
}
