package testutil

import (
	"context"
	"time"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/tool"
)

// AgentConfig returns a minimal valid config for the named agent. Mutate the
// result in the test to exercise specific settings.
func AgentConfig(id string) core.AgentConfig {
	return core.AgentConfig{
		ID:           id,
		Name:         id,
		SystemPrompt: "You are a test assistant.",
		Provider:     "mock",
		Model:        "test-model",
		MaxSteps:     5,
	}
}

// EchoTool returns a tool that echoes its "value" argument back as payload.
func EchoTool(name string, optFns ...func(o *tool.FunctionOptions)) tool.Tool {
	return tool.NewFunctionTool(
		name,
		"Echoes the value argument.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
			},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["value"], nil
		},
		optFns...,
	)
}

// SlowTool returns a tool that sleeps until its delay elapses or the context
// is cancelled, then echoes its name.
func SlowTool(name string, delay time.Duration, optFns ...func(o *tool.FunctionOptions)) tool.Tool {
	return tool.NewFunctionTool(
		name,
		"Waits before answering.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, _ map[string]any) (any, error) {
			select {
			case <-time.After(delay):
				return name, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		optFns...,
	)
}
