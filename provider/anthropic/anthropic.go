// Package anthropic adapts the Anthropic Messages API (including streaming
// and tool use) to the provider.ChatModel surface.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/provider"
)

const defaultMaxTokens = 4096

// Model wraps the Anthropic client behind provider.ChatModel.
type Model struct {
	client     *anthropic.Client
	model      anthropic.Model
	maxRetries int
}

var _ provider.ChatModel = (*Model)(nil)

// New is the provider.Constructor for the Anthropic backend.
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

	id := anthropic.ModelClaudeSonnet4_0
	if model != "" {
		id = anthropic.Model(model)
	}
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	client := anthropic.NewClient(copts...)
	return &Model{client: &client, model: id, maxRetries: maxRetries}, nil
}

func (m *Model) buildParams(req provider.Request) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     m.model,
		Messages:  buildMessages(req.Messages),
		MaxTokens: maxTokens,
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if system := extractSystem(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	return params
}

// buildMessages converts transcript messages into Anthropic message params.
// Tool results are embedded as tool_result blocks in user messages, which is
// how the Messages API expects them back.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			continue
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case core.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		case core.RoleTool:
			isError := msg.Metadata != nil && msg.Metadata["success"] == false
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError),
			))
		}
	}
	return out
}

func extractSystem(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: msg.Content})
		}
	}
	return blocks
}

func buildTools(defs []core.ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Parameters != nil {
			if properties, ok := def.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			schema.Required = requiredNames(def.Parameters["required"])
		}
		tool := anthropic.ToolUnionParamOfTool(schema, def.Name)
		if tool.OfTool != nil && def.Description != "" {
			tool.OfTool.Description = anthropic.String(def.Description)
		}
		tools[i] = tool
	}
	return tools
}

func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		var names []string
		for _, r := range req {
			if s, ok := r.(string); ok {
				names = append(names, s)
			}
		}
		return names
	default:
		return nil
	}
}

// Generate implements provider.ChatModel.
func (m *Model) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := m.buildParams(req)

	var resp *anthropic.Message
	err := provider.Retry(ctx, m.maxRetries, 0, isRetryable, func() error {
		var callErr error
		resp, callErr = m.client.Messages.New(ctx, params)
		return callErr
	})
	if err != nil {
		return nil, &provider.CallError{Provider: "anthropic", Model: string(m.model), Err: err}
	}

	return m.toResponse(resp), nil
}

func (m *Model) toResponse(resp *anthropic.Message) *provider.Response {
	var text string
	var calls []core.ToolCallRequest
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			calls = append(calls, core.ToolCallRequest{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: decodeInput(toolBlock.Input),
			})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &provider.Response{
		Message: core.NewAssistantMessage(text, calls...),
		Usage: core.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		FinishReason: finishReason,
	}
}

func decodeInput(input json.RawMessage) map[string]any {
	args := map[string]any{}
	if len(input) > 0 {
		_ = json.Unmarshal(input, &args)
	}
	return args
}

// Stream implements provider.ChatModel. Tool call input arrives as JSON
// fragments across content_block_delta events and is assembled before the
// final StreamDone response is emitted.
func (m *Model) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, <-chan error) {
	out := make(chan provider.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)
		stream := m.client.Messages.NewStreaming(ctx, params)

		var text strings.Builder
		var calls []core.ToolCallRequest
		var currentCall *core.ToolCallRequest
		var currentInput strings.Builder
		var usage core.TokenUsage
		finishReason := "stop"

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "message_start":
				messageStart := event.AsMessageStart()
				usage.PromptTokens = int(messageStart.Message.Usage.InputTokens)

			case "content_block_start":
				contentBlock := event.AsContentBlockStart().ContentBlock
				if contentBlock.Type == "tool_use" {
					toolUse := contentBlock.AsToolUse()
					currentCall = &core.ToolCallRequest{ID: toolUse.ID, Name: toolUse.Name}
					currentInput.Reset()
				}

			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						text.WriteString(delta.Text)
						select {
						case <-ctx.Done():
							errCh <- ctx.Err()
							return
						case out <- provider.StreamEvent{Type: provider.StreamText, Text: delta.Text}:
						}
					}
				case "input_json_delta":
					currentInput.WriteString(delta.PartialJSON)
				}

			case "content_block_stop":
				if currentCall != nil {
					currentCall.Arguments = decodeInput(json.RawMessage(currentInput.String()))
					calls = append(calls, *currentCall)
					currentCall = nil
				}

			case "message_delta":
				messageDelta := event.AsMessageDelta()
				usage.CompletionTokens = int(messageDelta.Usage.OutputTokens)
				if messageDelta.Delta.StopReason != "" {
					finishReason = string(messageDelta.Delta.StopReason)
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- &provider.CallError{Provider: "anthropic", Model: string(m.model), Err: err}
			return
		}

		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
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
	return provider.Info{Provider: "anthropic", Model: string(m.model), SupportsTools: true}
}

func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
