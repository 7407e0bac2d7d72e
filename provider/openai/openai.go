// Package openai adapts the OpenAI Chat Completions API (including streaming
// and function/tool calling) to the provider.ChatModel surface.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/provider"
)

// Model wraps the OpenAI client behind provider.ChatModel.
type Model struct {
	client     *openai.Client
	model      string
	maxRetries int
}

var _ provider.ChatModel = (*Model)(nil)

// New is the provider.Constructor for the OpenAI backend.
func New(settings provider.Settings, model string) (provider.ChatModel, error) {
	var copts []option.RequestOption
	if settings.APIKey != "" {
		copts = append(copts, option.WithAPIKey(settings.APIKey))
	}
	if settings.BaseURL != "" {
		copts = append(copts, option.WithBaseURL(settings.BaseURL))
	}
	if settings.Timeout > 0 {
		copts = append(copts, option.WithRequestTimeout(settings.Timeout))
	}

	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client := openai.NewClient(copts...)
	return &Model{client: &client, model: model, maxRetries: maxRetries}, nil
}

// buildMessages converts transcript messages into OpenAI chat messages.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if !m.HasToolCalls() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: encodeArgs(tc.Arguments),
					},
				})
			}
			assistant := &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case core.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out
}

func encodeArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &args)
	}
	return args
}

func (m *Model) buildParams(req provider.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: buildMessages(req.Messages),
		Model:    m.model,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, def := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        def.Name,
					Description: openai.String(def.Description),
					Parameters:  def.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	return params
}

// Generate implements provider.ChatModel.
func (m *Model) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := m.buildParams(req)

	var resp *openai.ChatCompletion
	err := provider.Retry(ctx, m.maxRetries, 0, isRetryable, func() error {
		var callErr error
		resp, callErr = m.client.Chat.Completions.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, &provider.CallError{Provider: "openai", Model: m.model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.CallError{Provider: "openai", Model: m.model, Err: fmt.Errorf("no choices returned")}
	}

	choice := resp.Choices[0]
	calls := make([]core.ToolCallRequest, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, core.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: decodeArgs(tc.Function.Arguments),
		})
	}

	return &provider.Response{
		Message: core.NewAssistantMessage(choice.Message.Content, calls...),
		Usage: core.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(choice.FinishReason),
	}, nil
}

// aggCall accumulates tool call streaming deltas until the finish chunk.
type aggCall struct{ id, name, args string }

// Stream implements provider.ChatModel.
func (m *Model) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, <-chan error) {
	out := make(chan provider.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		var text strings.Builder
		toolAgg := map[int64]*aggCall{}
		var order []int64
		var usage core.TokenUsage
		finishReason := "stop"

		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.TotalTokens > 0 {
				usage = core.TokenUsage{
					PromptTokens:     int(chunk.Usage.PromptTokens),
					CompletionTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:      int(chunk.Usage.TotalTokens),
				}
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content != "" {
					text.WriteString(choice.Delta.Content)
					select {
					case <-ctx.Done():
						errCh <- ctx.Err()
						return
					case out <- provider.StreamEvent{Type: provider.StreamText, Text: choice.Delta.Content}:
					}
				}
				for _, tc := range choice.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
						order = append(order, tc.Index)
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					ac.args += tc.Function.Arguments
				}
				if choice.FinishReason != "" {
					finishReason = string(choice.FinishReason)
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- &provider.CallError{Provider: "openai", Model: m.model, Err: err}
			return
		}

		calls := make([]core.ToolCallRequest, 0, len(order))
		for _, idx := range order {
			ac := toolAgg[idx]
			calls = append(calls, core.ToolCallRequest{ID: ac.id, Name: ac.name, Arguments: decodeArgs(ac.args)})
		}

		out <- provider.StreamEvent{
			Type: provider.StreamDone,
			Response: &provider.Response{
				Message:      core.NewAssistantMessage(text.String(), calls...),
				Usage:        usage,
				FinishReason: finishReason,
			},
		}
	}()

	return out, errCh
}

// Info implements provider.ChatModel.
func (m *Model) Info() provider.Info {
	return provider.Info{Provider: "openai", Model: m.model, SupportsTools: true}
}

func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
