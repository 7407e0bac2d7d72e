package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

// Conversation roles. The set is closed; providers map these onto their own
// wire formats.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest is a single tool invocation requested by an assistant
// message. Arguments arrive as a decoded JSON object.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult is the outcome of exactly one ToolCallRequest. The payload is
// opaque to the execution loop; it is serialized back into the transcript as
// a tool-role message.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Success  bool           `json:"success"`
	Payload  any            `json:"payload,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Message is one entry of the conversation transcript. Ordering is insertion
// order and is never re-sorted.
type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	ToolCalls []ToolCallRequest `json:"tool_calls,omitempty"` // assistant messages only
	ToolCallID string           `json:"tool_call_id,omitempty"` // tool messages: originating request
	Metadata  map[string]any    `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage constructs a message with the creation timestamp set.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// NewSystemMessage returns a system-role message.
func NewSystemMessage(content string) Message { return NewMessage(RoleSystem, content) }

// NewUserMessage returns a user-role message.
func NewUserMessage(content string) Message { return NewMessage(RoleUser, content) }

// NewAssistantMessage returns an assistant-role message carrying zero or more
// tool call requests.
func NewAssistantMessage(content string, calls ...ToolCallRequest) Message {
	m := NewMessage(RoleAssistant, content)
	m.ToolCalls = calls
	return m
}

// NewToolMessage converts a ToolResult into its tool-role transcript entry.
// Failed results carry the error text as content so the model can adapt.
func NewToolMessage(res ToolResult) Message {
	content := res.Error
	if res.Success {
		content = StringifyPayload(res.Payload)
	}
	m := NewMessage(RoleTool, content)
	m.ToolCallID = res.CallID
	m.Metadata = map[string]any{"tool": res.Name, "success": res.Success}
	return m
}

// HasToolCalls reports whether the message requests any tool invocations.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// NewID generates a unique identifier for runs, turns and tool calls.
func NewID() string { return uuid.NewString() }
