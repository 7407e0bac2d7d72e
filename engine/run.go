package engine

import (
	"context"
	"time"

	"github.com/convoke/convoke/core"
)

// Run executes one blocking turn: START seeds the transcript, AGENT_STEP and
// TOOL_STEP alternate until the model answers without tool calls or the
// max-steps bound forces termination, then DONE writes the transcript back
// and returns the result.
//
// Guard rejections and provider failures surface as *Error before any
// conversation write occurs; max-steps truncation is not an error.
func (e *Engine) Run(ctx context.Context, cfg core.AgentConfig, input, threadID string) (*core.ExecutionResult, error) {
	t, terr := e.begin(ctx, cfg, input, threadID)
	if terr != nil {
		return nil, terr
	}

	for {
		stepStart := time.Now()
		resp, err := t.model.Generate(ctx, t.request())
		if err != nil {
			if ctx.Err() != nil {
				return nil, newError(CodeProvider, "turn cancelled", ctx.Err())
			}
			e.logger.Error("turn.model_failed", "agent_id", cfg.ID, "thread_id", t.threadID, "error", err.Error())
			return nil, newError(CodeProvider, "agent unavailable", err)
		}
		t.usage.Add(resp.Usage)
		t.messages = append(t.messages, resp.Message)
		t.record("agent_step", stepStart)

		if !resp.Message.HasToolCalls() {
			return t.finish(resp.Message.Content), nil
		}
		if t.iteration >= cfg.MaxSteps {
			// Safety valve: the partial assistant message is still
			// returned, truncation is policy, not failure.
			t.truncated = true
			e.logger.Warn("turn.max_steps", "agent_id", cfg.ID, "thread_id", t.threadID, "max_steps", cfg.MaxSteps)
			return t.finish(resp.Message.Content), nil
		}

		stepStart = time.Now()
		t.toolStep(ctx, resp.Message.ToolCalls, nil)
		t.record("tool_step", stepStart)

		if ctx.Err() != nil {
			return nil, newError(CodeProvider, "turn cancelled", ctx.Err())
		}
	}
}
