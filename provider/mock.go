package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/convoke/convoke/core"
)

// MockModel is a scripted in-memory ChatModel for tests and examples. It
// replays enqueued responses in order; when the script is exhausted it echoes
// the last user message. The call counter covers Generate and Stream alike.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	scripted []*Response
	calls    int
}

var _ ChatModel = (*MockModel)(nil)

// NewMockModel constructs a mock with tool support enabled.
func NewMockModel(providerName, modelName string) *MockModel {
	return &MockModel{info: Info{Provider: providerName, Model: modelName, SupportsTools: true}}
}

// Enqueue appends a scripted response.
func (m *MockModel) Enqueue(resp *Response) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, resp)
	return m
}

// EnqueueText scripts a plain assistant answer.
func (m *MockModel) EnqueueText(text string) *MockModel {
	return m.Enqueue(&Response{
		Message:      core.NewAssistantMessage(text),
		FinishReason: "stop",
	})
}

// EnqueueToolCalls scripts an assistant message requesting the given calls.
func (m *MockModel) EnqueueToolCalls(calls ...core.ToolCallRequest) *MockModel {
	return m.Enqueue(&Response{
		Message:      core.NewAssistantMessage("", calls...),
		FinishReason: "tool_calls",
	})
}

// Calls returns how many generation requests the mock has served.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockModel) next(req Request) *Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.scripted) > 0 {
		resp := m.scripted[0]
		m.scripted = m.scripted[1:]
		return resp
	}

	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleUser {
			lastUser = msg.Content
		}
	}
	return &Response{
		Message:      core.NewAssistantMessage(fmt.Sprintf("Mock response to: %s", lastUser)),
		FinishReason: "stop",
	}
}

// Generate implements ChatModel.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next(req), nil
}

// Stream implements ChatModel, emitting the response text rune by rune.
func (m *MockModel) Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error) {
	out := make(chan StreamEvent, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		resp := m.next(req)
		for _, r := range resp.Message.Content {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- StreamEvent{Type: StreamText, Text: string(r)}:
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- StreamEvent{Type: StreamDone, Response: resp}:
		}
	}()
	return out, errCh
}

// Info implements ChatModel.
func (m *MockModel) Info() Info { return m.info }
