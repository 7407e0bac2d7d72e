// Package provider defines the uniform capability surface over interchangeable
// chat-completion backends and the router that resolves (provider, model)
// pairs to cached clients. Backend quirks are normalized here: a provider that
// cannot report token usage yields zero counters, never a different shape.
package provider

import (
	"context"

	"github.com/convoke/convoke/core"
)

// Request is the normalized model input for one generation call.
type Request struct {
	Messages    []core.Message        `json:"messages"`
	Tools       []core.ToolDefinition `json:"tools,omitempty"`
	Temperature float64               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

// Response is the completed model output: one assistant message plus usage.
type Response struct {
	Message      core.Message    `json:"message"`
	Usage        core.TokenUsage `json:"usage"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

// StreamEventType discriminates streaming events.
type StreamEventType string

const (
	// StreamText carries an incremental text delta.
	StreamText StreamEventType = "text"
	// StreamDone carries the final assembled Response and closes the stream.
	StreamDone StreamEventType = "done"
)

// StreamEvent is one element of a model's streaming output.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	Response *Response       `json:"response,omitempty"`
}

// Info describes a constructed client.
type Info struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	SupportsTools bool   `json:"supports_tools"`
}

// ChatModel is the capability surface the execution loop drives. Generate
// blocks until the full response is available; Stream emits text deltas
// followed by exactly one StreamDone event. Both honor context cancellation.
type ChatModel interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, <-chan error)
	Info() Info
}
