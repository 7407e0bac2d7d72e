// Package google adapts the Google Gemini API to the provider.ChatModel
// surface using the Google Gen AI SDK.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/provider"
)

const defaultModel = "gemini-2.0-flash"

// Model wraps the Gemini client behind provider.ChatModel.
type Model struct {
	client     *genai.Client
	model      string
	maxRetries int
}

var _ provider.ChatModel = (*Model)(nil)

// New is the provider.Constructor for the Gemini backend.
func New(settings provider.Settings, model string) (provider.ChatModel, error) {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  settings.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	if model == "" {
		model = defaultModel
	}
	maxRetries := settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Model{client: client, model: model, maxRetries: maxRetries}, nil
}

// buildContents converts transcript messages into Gemini contents. System
// messages are carried separately via SystemInstruction.
func buildContents(msgs []core.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range msgs {
		if msg.Role == core.RoleSystem {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case core.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		switch msg.Role {
		case core.RoleTool:
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     toolName(msg),
					Response: toolResponse(msg),
				},
			})
		default:
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: tc.Arguments},
				})
			}
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out
}

func toolName(msg core.Message) string {
	if msg.Metadata != nil {
		if name, ok := msg.Metadata["tool"].(string); ok {
			return name
		}
	}
	return msg.ToolCallID
}

func toolResponse(msg core.Message) map[string]any {
	var response map[string]any
	if err := json.Unmarshal([]byte(msg.Content), &response); err != nil {
		response = map[string]any{"result": msg.Content}
	}
	return response
}

func buildConfig(req provider.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleSystem && msg.Content != "" {
			system = append(system, msg.Content)
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 && req.MaxTokens <= 1<<31-1 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = buildTools(req.Tools)
	}
	return config
}

func buildTools(defs []core.ToolDefinition) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  toSchema(def.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toSchema converts a JSON Schema map to Gemini's Schema type.
func toSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toSchema(propMap)
			}
		}
	}
	switch required := schemaMap["required"].(type) {
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	case []string:
		schema.Required = append(schema.Required, required...)
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toSchema(items)
	}
	return schema
}

// Generate implements provider.ChatModel.
func (m *Model) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	contents := buildContents(req.Messages)
	config := buildConfig(req)

	var resp *genai.GenerateContentResponse
	err := provider.Retry(ctx, m.maxRetries, 0, isRetryable, func() error {
		var callErr error
		resp, callErr = m.client.Models.GenerateContent(ctx, m.model, contents, config)
		return callErr
	})
	if err != nil {
		return nil, &provider.CallError{Provider: "google", Model: m.model, Err: err}
	}

	var text strings.Builder
	var calls []core.ToolCallRequest
	finishReason := "stop"
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		if candidate.FinishReason != "" {
			finishReason = strings.ToLower(string(candidate.FinishReason))
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				calls = append(calls, toToolCall(part.FunctionCall))
			}
		}
	}

	return &provider.Response{
		Message:      core.NewAssistantMessage(text.String(), calls...),
		Usage:        usageFrom(resp),
		FinishReason: finishReason,
	}, nil
}

// Stream implements provider.ChatModel.
func (m *Model) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, <-chan error) {
	out := make(chan provider.StreamEvent, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Messages)
		config := buildConfig(req)

		var text strings.Builder
		var calls []core.ToolCallRequest
		var usage core.TokenUsage

		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.model, contents, config) {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}
			if err != nil {
				errCh <- &provider.CallError{Provider: "google", Model: m.model, Err: err}
				return
			}
			if resp == nil {
				continue
			}
			if u := usageFrom(resp); u.TotalTokens > 0 {
				usage = u
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						text.WriteString(part.Text)
						out <- provider.StreamEvent{Type: provider.StreamText, Text: part.Text}
					}
					if part.FunctionCall != nil {
						calls = append(calls, toToolCall(part.FunctionCall))
					}
				}
			}
		}

		out <- provider.StreamEvent{
			Type: provider.StreamDone,
			Response: &provider.Response{
				Message:      core.NewAssistantMessage(text.String(), calls...),
				Usage:        usage,
				FinishReason: "stop",
			},
		}
	}()

	return out, errCh
}

// Info implements provider.ChatModel.
func (m *Model) Info() provider.Info {
	return provider.Info{Provider: "google", Model: m.model, SupportsTools: true}
}

// toToolCall converts a Gemini function call into a tool call request. Gemini
// does not assign call IDs, so one is generated for transcript linkage.
func toToolCall(fc *genai.FunctionCall) core.ToolCallRequest {
	args := fc.Args
	if args == nil {
		args = map[string]any{}
	}
	return core.ToolCallRequest{
		ID:        "call_" + core.NewID(),
		Name:      fc.Name,
		Arguments: args,
	}
}

func usageFrom(resp *genai.GenerateContentResponse) core.TokenUsage {
	if resp.UsageMetadata == nil {
		return core.TokenUsage{}
	}
	return core.TokenUsage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
	}
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "timeout")
}
