package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoke/convoke/core"
)

type stubSemantic struct {
	records []core.SemanticRecord
	err     error

	lastQuery  string
	lastK      int
	lastFilter map[string]any
}

func (s *stubSemantic) Insert(context.Context, string, map[string]any) (string, error) {
	return "", nil
}

func (s *stubSemantic) Search(_ context.Context, query string, k int, filter map[string]any) ([]core.SemanticRecord, error) {
	s.lastQuery = query
	s.lastK = k
	s.lastFilter = filter
	return s.records, s.err
}

func TestBuild_DefaultSystemPrompt(t *testing.T) {
	b := NewBuilder()

	msg, err := b.Build(context.Background(), core.AgentConfig{ID: "helper"}, "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RoleSystem, msg.Role)
	assert.Equal(t, "You are helper, a helpful AI assistant.", msg.Content)

	msg, err = b.Build(context.Background(), core.AgentConfig{ID: "helper", Name: "Ada"}, "hi", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "You are Ada, a helpful AI assistant.", msg.Content)
}

func TestBuild_TemplateExpansion(t *testing.T) {
	b := NewBuilder()
	cfg := core.AgentConfig{
		ID:           "helper",
		SystemPrompt: "You assist {{.customer}} with their {{.plan | upper}} plan.",
		Goal:         "Resolve ticket {{.ticket}}.",
	}
	state := map[string]any{"customer": "Acme", "plan": "gold", "ticket": "T-42"}

	msg, err := b.Build(context.Background(), cfg, "hi", state, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"You assist Acme with their GOLD plan.\n\nYour current goal:\nResolve ticket T-42.",
		msg.Content)
}

func TestBuild_TemplateErrorFailsTurn(t *testing.T) {
	b := NewBuilder()
	cfg := core.AgentConfig{ID: "helper", SystemPrompt: "Broken {{.open"}

	_, err := b.Build(context.Background(), cfg, "hi", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render system prompt")
}

func TestBuild_RecallSection(t *testing.T) {
	sem := &stubSemantic{records: []core.SemanticRecord{
		{ID: "m1", Text: "User prefers concise answers.", Score: 0.9},
		{ID: "m2", Text: "User timezone is CET.", Score: 0.7},
	}}
	b := NewBuilder(func(o *Options) {
		o.Semantic = sem
		o.RecallResults = 2
	})

	msg, err := b.Build(context.Background(), core.AgentConfig{ID: "helper"}, "what time is it", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "Relevant context from memory:")
	assert.Contains(t, msg.Content, "- User prefers concise answers.")
	assert.Contains(t, msg.Content, "- User timezone is CET.")

	assert.Equal(t, "what time is it", sem.lastQuery)
	assert.Equal(t, 2, sem.lastK)
	assert.Equal(t, map[string]any{"agent_id": "helper"}, sem.lastFilter)
}

func TestBuild_RecallFailureDegrades(t *testing.T) {
	sem := &stubSemantic{err: errors.New("vector store down")}
	b := NewBuilder(func(o *Options) { o.Semantic = sem })

	msg, err := b.Build(context.Background(), core.AgentConfig{ID: "helper"}, "hi", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, msg.Content, "Relevant context")
}

func TestBuild_ToolSummary(t *testing.T) {
	b := NewBuilder()
	tools := []core.ToolDefinition{
		{Name: "calculator", Description: "Evaluates arithmetic."},
		{Name: "lookup", Description: "Looks up a record."},
	}

	msg, err := b.Build(context.Background(), core.AgentConfig{ID: "helper"}, "hi", nil, tools)
	require.NoError(t, err)
	assert.Contains(t, msg.Content,
		"You have access to the following tools:\n- calculator: Evaluates arithmetic.\n- lookup: Looks up a record.")
}

func TestBuild_SectionsJoinedInOrder(t *testing.T) {
	sem := &stubSemantic{records: []core.SemanticRecord{{ID: "m1", Text: "fact"}}}
	b := NewBuilder(func(o *Options) { o.Semantic = sem })
	cfg := core.AgentConfig{ID: "helper", SystemPrompt: "Base.", Goal: "Finish."}
	tools := []core.ToolDefinition{{Name: "t", Description: "d"}}

	msg, err := b.Build(context.Background(), cfg, "query", nil, tools)
	require.NoError(t, err)
	assert.Equal(t,
		"Base.\n\nYour current goal:\nFinish.\n\nRelevant context from memory:\n- fact\n\nYou have access to the following tools:\n- t: d",
		msg.Content)
}
