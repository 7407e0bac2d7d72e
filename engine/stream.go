package engine

import (
	"context"
	"time"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/provider"
)

// Stream executes one turn incrementally. It follows the exact state
// transitions of Run but emits token events during AGENT_STEP and discrete
// tool_start/tool_end events during TOOL_STEP. The sequence terminates with
// exactly one done or error event.
func (e *Engine) Stream(ctx context.Context, cfg core.AgentConfig, input, threadID string) <-chan Event {
	out := make(chan Event, 32)

	go func() {
		defer close(out)

		t, terr := e.begin(ctx, cfg, input, threadID)
		if terr != nil {
			out <- Event{Type: EventError, Err: terr}
			return
		}

		for {
			stepStart := time.Now()
			resp, err := t.streamAgentStep(ctx, out)
			if err != nil {
				if ctx.Err() != nil {
					out <- Event{Type: EventError, Err: newError(CodeProvider, "turn cancelled", ctx.Err())}
					return
				}
				e.logger.Error("turn.model_failed", "agent_id", cfg.ID, "thread_id", t.threadID, "error", err.Error())
				out <- Event{Type: EventError, Err: newError(CodeProvider, "agent unavailable", err)}
				return
			}
			t.usage.Add(resp.Usage)
			t.messages = append(t.messages, resp.Message)
			t.record("agent_step", stepStart)

			if !resp.Message.HasToolCalls() {
				out <- Event{Type: EventDone, Final: t.finish(resp.Message.Content)}
				return
			}
			if t.iteration >= cfg.MaxSteps {
				t.truncated = true
				e.logger.Warn("turn.max_steps", "agent_id", cfg.ID, "thread_id", t.threadID, "max_steps", cfg.MaxSteps)
				out <- Event{Type: EventDone, Final: t.finish(resp.Message.Content)}
				return
			}

			stepStart = time.Now()
			calls := resp.Message.ToolCalls
			t.toolStep(ctx, calls, func(i int, done bool, res *core.ToolResult) {
				if done {
					out <- Event{Type: EventToolEnd, ToolName: calls[i].Name, CallID: calls[i].ID, Result: res}
				} else {
					out <- Event{Type: EventToolStart, ToolName: calls[i].Name, CallID: calls[i].ID}
				}
			})
			t.record("tool_step", stepStart)

			if ctx.Err() != nil {
				out <- Event{Type: EventError, Err: newError(CodeProvider, "turn cancelled", ctx.Err())}
				return
			}
		}
	}()

	return out
}

// streamAgentStep consumes the provider stream, forwarding text deltas as
// token events and returning the assembled final response.
func (t *turn) streamAgentStep(ctx context.Context, out chan<- Event) (*provider.Response, error) {
	events, errCh := t.model.Stream(ctx, t.request())

	var final *provider.Response
	for ev := range events {
		switch ev.Type {
		case provider.StreamText:
			if ev.Text != "" {
				out <- Event{Type: EventToken, Token: ev.Text}
			}
		case provider.StreamDone:
			final = ev.Response
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if final == nil {
		// A provider that closes without a final event still yields an
		// empty assistant message; empty answers are valid.
		final = &provider.Response{Message: core.NewAssistantMessage("")}
	}
	return final, nil
}
