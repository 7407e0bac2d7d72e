package engine

import "github.com/convoke/convoke/core"

// EventType identifies one entry of a streamed turn.
type EventType string

// Stream event types. Consumers must treat the sequence as ordered and
// terminate on EventDone or EventError.
const (
	EventToken     EventType = "token"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// Event is one element of the incremental turn sequence emitted by Stream.
type Event struct {
	Type EventType `json:"type"`

	// Token carries incremental assistant text for EventToken.
	Token string `json:"token,omitempty"`

	// ToolName and CallID identify the invocation for tool events.
	ToolName string `json:"tool_name,omitempty"`
	CallID   string `json:"call_id,omitempty"`

	// Result is set on EventToolEnd.
	Result *core.ToolResult `json:"result,omitempty"`

	// Err is set on EventError.
	Err *Error `json:"error,omitempty"`

	// Final is set on EventDone.
	Final *core.ExecutionResult `json:"final,omitempty"`
}
