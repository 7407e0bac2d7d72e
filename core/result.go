package core

import "time"

// TokenUsage aggregates token accounting across the model calls of one turn.
// Providers that cannot report usage normalize to zero.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Step is one named stage of a turn, recorded for observability.
type Step struct {
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ToolCallRecord pairs a request with its result for the turn summary.
type ToolCallRecord struct {
	Request ToolCallRequest `json:"request"`
	Result  ToolResult      `json:"result"`
}

// ExecutionResult is the outcome of one completed turn.
type ExecutionResult struct {
	Response  string           `json:"response"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage     TokenUsage       `json:"usage"`
	Duration  time.Duration    `json:"duration"`
	ThreadID  string           `json:"thread_id"`
	Steps     []Step           `json:"steps,omitempty"`
	Truncated bool             `json:"truncated,omitempty"` // max-steps safety valve fired
}

// ExecutionState is the transient per-turn state of the execution loop.
// It is created at turn start and discarded at turn end; a CheckpointStore
// may persist it between turns keyed by thread id.
type ExecutionState struct {
	ThreadID  string    `json:"thread_id"`
	Messages  []Message `json:"messages"`
	Iteration int       `json:"iteration"`
	Stop      bool      `json:"stop"`
}

// CheckpointStore optionally persists ExecutionState between turns. It is an
// external collaborator; the core ships only an in-memory implementation.
type CheckpointStore interface {
	Save(threadID string, state *ExecutionState) error
	Load(threadID string) (*ExecutionState, bool, error)
	Delete(threadID string) error
}
