package core

import (
	"fmt"
	"time"
)

// MemorySettings bounds an agent's conversation and session memory.
type MemorySettings struct {
	MaxMessages     int           `json:"max_messages" yaml:"max_messages"`
	ConversationTTL time.Duration `json:"conversation_ttl" yaml:"conversation_ttl"`
	SessionTTL      time.Duration `json:"session_ttl" yaml:"session_ttl"`
}

// ToolServer describes an external tool server whose tools are discovered and
// attached at run start. Collisions with built-in tool names are resolved in
// favor of the built-in.
type ToolServer struct {
	Name    string            `json:"name" yaml:"name"`
	BaseURL string            `json:"base_url" yaml:"base_url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AgentConfig is the immutable per-turn description of an agent: prompt,
// backend selection, permitted tools and memory bounds. It is supplied by an
// external persistence layer and treated as read-only by the execution core.
type AgentConfig struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	SystemPrompt string          `json:"system_prompt" yaml:"system_prompt"`
	Goal         string          `json:"goal,omitempty" yaml:"goal,omitempty"`
	Provider     string          `json:"provider" yaml:"provider"`
	Model        string          `json:"model" yaml:"model"`
	Temperature  float64         `json:"temperature" yaml:"temperature"`
	MaxTokens    int             `json:"max_tokens" yaml:"max_tokens"`
	Tools        []string        `json:"tools,omitempty" yaml:"tools,omitempty"`
	Permissions  map[string]bool `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Memory       MemorySettings  `json:"memory" yaml:"memory"`
	MaxSteps     int             `json:"max_steps" yaml:"max_steps"`
	ToolServers  []ToolServer    `json:"tool_servers,omitempty" yaml:"tool_servers,omitempty"`
}

// Validate checks the invariants the execution loop relies on.
func (c *AgentConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("agent config is nil")
	}
	if c.ID == "" {
		return fmt.Errorf("agent config: id is required")
	}
	if c.Provider == "" {
		return fmt.Errorf("agent config %s: provider is required", c.ID)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("agent config %s: max_steps must be >= 1, got %d", c.ID, c.MaxSteps)
	}
	return nil
}

// HasPermission reports whether the named capability flag is granted.
func (c *AgentConfig) HasPermission(name string) bool {
	return c.Permissions[name]
}
