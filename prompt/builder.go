// Package prompt assembles the system prompt for an agent turn from the
// agent's configured instructions, session state, semantic recall, and the
// set of tools available in this turn.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/internal/util"
	"github.com/convoke/convoke/logging"
)

// Options configures the prompt builder.
type Options struct {
	// Semantic is the long-term recall collaborator. Nil disables recall.
	Semantic core.SemanticStore

	// RecallResults is the number of semantic results folded into the
	// prompt when Semantic is set.
	RecallResults int

	Logger logging.Logger
}

// Builder assembles system prompts. It is stateless between turns and safe
// for concurrent use.
type Builder struct {
	semantic      core.SemanticStore
	recallResults int
	logger        logging.Logger
}

// NewBuilder creates a prompt builder.
func NewBuilder(optFns ...func(o *Options)) *Builder {
	opts := Options{
		RecallResults: 3,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Builder{
		semantic:      opts.Semantic,
		recallResults: opts.RecallResults,
		logger:        logging.OrNoop(opts.Logger),
	}
}

// Build produces the system message for a turn. The agent's system prompt is
// expanded as a template against the session state, then the goal, semantic
// recall, and tool summary sections are appended in that order.
func (b *Builder) Build(
	ctx context.Context,
	cfg core.AgentConfig,
	input string,
	sessionState map[string]any,
	tools []core.ToolDefinition,
) (core.Message, error) {
	var sections []string

	system := cfg.SystemPrompt
	if system == "" {
		name := cfg.Name
		if name == "" {
			name = cfg.ID
		}
		system = fmt.Sprintf("You are %s, a helpful AI assistant.", name)
	}
	rendered, err := util.RenderTemplate(system, sessionState)
	if err != nil {
		return core.Message{}, fmt.Errorf("render system prompt: %w", err)
	}
	sections = append(sections, rendered)

	if cfg.Goal != "" {
		goal, err := util.RenderTemplate(cfg.Goal, sessionState)
		if err != nil {
			return core.Message{}, fmt.Errorf("render goal: %w", err)
		}
		sections = append(sections, "Your current goal:\n"+goal)
	}

	if recall := b.recall(ctx, cfg, input); recall != "" {
		sections = append(sections, recall)
	}

	if summary := toolSummary(tools); summary != "" {
		sections = append(sections, summary)
	}

	return core.NewSystemMessage(strings.Join(sections, "\n\n")), nil
}

// recall queries the semantic store and formats the results as a context
// section. Retrieval failures degrade to no recall rather than failing the
// turn.
func (b *Builder) recall(ctx context.Context, cfg core.AgentConfig, input string) string {
	if b.semantic == nil || input == "" {
		return ""
	}

	records, err := b.semantic.Search(ctx, input, b.recallResults, map[string]any{"agent_id": cfg.ID})
	if err != nil {
		b.logger.Warn("semantic recall failed", "agent_id", cfg.ID, "error", err)
		return ""
	}
	if len(records) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant context from memory:")
	for _, rec := range records {
		sb.WriteString("\n- ")
		sb.WriteString(rec.Text)
	}
	return sb.String()
}

func toolSummary(tools []core.ToolDefinition) string {
	if len(tools) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("You have access to the following tools:")
	for _, def := range tools {
		sb.WriteString(fmt.Sprintf("\n- %s: %s", def.Name, def.Description))
	}
	return sb.String()
}
