package llm

import "context"

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return StreamOf("mock ", "stream"), nil
}

// StreamOf returns a closed channel holding one delta per chunk followed by
// a done event whose content is their concatenation.
func StreamOf(chunks ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(chunks)+1)
	var full string
	for _, c := range chunks {
		full += c
		ch <- StreamEvent{Type: EventDelta, Content: c}
	}
	ch <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: full}}
	close(ch)
	return ch
}

// StreamThenFail is like StreamOf but ends with an error event.
func StreamThenFail(errMsg string, chunks ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(chunks)+1)
	for _, c := range chunks {
		ch <- StreamEvent{Type: EventDelta, Content: c}
	}
	ch <- StreamEvent{Type: EventError, Error: errMsg}
	close(ch)
	return ch
}
