package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/guard"
	"github.com/convoke/convoke/logging"
	"github.com/convoke/convoke/memory"
	"github.com/convoke/convoke/prompt"
	"github.com/convoke/convoke/provider"
	"github.com/convoke/convoke/tool"
)

// Options configures an Engine.
type Options struct {
	Conversations *memory.ConversationStore
	Sessions      *memory.SessionStore
	Prompt        *prompt.Builder
	Guard         *guard.Guard
	Limiter       *guard.RateLimiter

	// Checkpoints optionally persists ExecutionState between turns.
	Checkpoints core.CheckpointStore

	// RateLimit is the per-agent request budget within RateWindow. Zero
	// disables rate limiting.
	RateLimit  int
	RateWindow time.Duration

	// FanOutLimit caps concurrent tool dispatch within one step.
	FanOutLimit int

	// ToolTimeout bounds each tool call unless the tool declares its own.
	ToolTimeout time.Duration

	Logger logging.Logger
}

// Engine drives agent turns. It is constructed once at process start and is
// safe for concurrent use; per-turn state lives in a transient turn value.
type Engine struct {
	router        *provider.Router
	registry      *tool.Registry
	conversations *memory.ConversationStore
	sessions      *memory.SessionStore
	prompt        *prompt.Builder
	guard         *guard.Guard
	limiter       *guard.RateLimiter
	checkpoints   core.CheckpointStore
	rateLimit     int
	rateWindow    time.Duration
	fanOutLimit   int
	toolTimeout   time.Duration
	logger        logging.Logger
}

// New creates an Engine around a provider router and tool registry. Memory
// stores, guard and limiter default to fresh in-memory instances.
func New(router *provider.Router, registry *tool.Registry, optFns ...func(o *Options)) *Engine {
	opts := Options{
		RateWindow:  time.Minute,
		FanOutLimit: 4,
		ToolTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Conversations == nil {
		opts.Conversations = memory.NewConversationStore()
	}
	if opts.Sessions == nil {
		opts.Sessions = memory.NewSessionStore()
	}
	if opts.Prompt == nil {
		opts.Prompt = prompt.NewBuilder()
	}
	if opts.Guard == nil {
		opts.Guard, _ = guard.New()
	}
	if opts.Limiter == nil {
		opts.Limiter = guard.NewRateLimiter()
	}
	if opts.FanOutLimit < 1 {
		opts.FanOutLimit = 1
	}

	return &Engine{
		router:        router,
		registry:      registry,
		conversations: opts.Conversations,
		sessions:      opts.Sessions,
		prompt:        opts.Prompt,
		guard:         opts.Guard,
		limiter:       opts.Limiter,
		checkpoints:   opts.Checkpoints,
		rateLimit:     opts.RateLimit,
		rateWindow:    opts.RateWindow,
		fanOutLimit:   opts.FanOutLimit,
		toolTimeout:   opts.ToolTimeout,
		logger:        logging.OrNoop(opts.Logger),
	}
}

// Conversations exposes the conversation store for callers that seed or
// inspect history out of band.
func (e *Engine) Conversations() *memory.ConversationStore { return e.conversations }

// Sessions exposes the session store.
func (e *Engine) Sessions() *memory.SessionStore { return e.sessions }

// turn is the transient state of one Run/Stream invocation.
type turn struct {
	e          *Engine
	cfg        core.AgentConfig
	threadID   string
	userMsg    core.Message
	messages   []core.Message
	defs       []core.ToolDefinition
	defsByName map[string]core.ToolDefinition
	model      provider.ChatModel
	records    []core.ToolCallRecord
	usage      core.TokenUsage
	steps      []core.Step
	iteration  int
	truncated  bool
	startedAt  time.Time
}

// begin runs every pre-model stage of a turn: config validation, guard
// pre-checks, provider resolution, tool-server attachment, tool binding and
// transcript seeding. Guard rejections happen before any provider call.
func (e *Engine) begin(ctx context.Context, cfg core.AgentConfig, input, threadID string) (*turn, *Error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(CodeInvalidConfig, err.Error(), err)
	}
	if threadID == "" {
		threadID = core.NewID()
	}

	t := &turn{
		e:         e,
		cfg:       cfg,
		threadID:  threadID,
		startedAt: time.Now(),
	}

	stepStart := time.Now()
	if e.rateLimit > 0 {
		if err := e.limiter.Check(cfg.ID, e.rateLimit, e.rateWindow); err != nil {
			e.logger.Warn("turn.rate_limited", "agent_id", cfg.ID, "thread_id", threadID)
			return nil, newError(CodeRateLimited, err.Error(), err)
		}
	}
	if err := e.guard.ValidateInput(input); err != nil {
		e.logger.Warn("turn.blocked", "agent_id", cfg.ID, "thread_id", threadID, "reason", err.Error())
		return nil, newError(CodeBlocked, err.Error(), err)
	}
	t.record("guard", stepStart)

	model, err := e.router.Client(cfg.Provider, cfg.Model)
	if err != nil {
		e.logger.Error("turn.provider_unavailable", "agent_id", cfg.ID, "provider", cfg.Provider, "error", err.Error())
		if errors.Is(err, provider.ErrProviderNotSupported) || errors.Is(err, provider.ErrProviderNotConfigured) {
			return nil, newError(CodeProvider, "agent unavailable: "+err.Error(), err)
		}
		return nil, newError(CodeProvider, "agent unavailable", err)
	}
	t.model = model

	stepStart = time.Now()
	for _, server := range cfg.ToolServers {
		names, attachErr := e.registry.AttachServer(ctx, server)
		if attachErr != nil {
			e.logger.Warn("turn.tool_server_failed", "server", server.Name, "error", attachErr.Error())
			continue
		}
		e.logger.Info("turn.tool_server_attached", "server", server.Name, "tools", len(names))
	}

	tools := e.registry.ValidateForAgent(cfg.Tools, cfg.Permissions)
	t.defs = make([]core.ToolDefinition, 0, len(tools))
	t.defsByName = make(map[string]core.ToolDefinition, len(tools))
	for _, tl := range tools {
		def := tool.Definition(tl)
		t.defs = append(t.defs, def)
		t.defsByName[def.Name] = def
	}
	t.record("bind_tools", stepStart)

	stepStart = time.Now()
	sessionState := e.sessions.State(cfg.ID, threadID)
	system, err := e.prompt.Build(ctx, cfg, input, sessionState, t.defs)
	if err != nil {
		return nil, newError(CodeInvalidConfig, err.Error(), err)
	}
	t.record("build_prompt", stepStart)

	t.userMsg = core.NewUserMessage(input)
	history := e.conversations.Get(cfg.ID, threadID)
	t.messages = make([]core.Message, 0, len(history)+2)
	t.messages = append(t.messages, system)
	t.messages = append(t.messages, history...)
	t.messages = append(t.messages, t.userMsg)

	return t, nil
}

func (t *turn) record(name string, start time.Time) {
	t.steps = append(t.steps, core.Step{Name: name, StartedAt: start, Duration: time.Since(start)})
}

func (t *turn) request() provider.Request {
	return provider.Request{
		Messages:    t.messages,
		Tools:       t.defs,
		Temperature: t.cfg.Temperature,
		MaxTokens:   t.cfg.MaxTokens,
	}
}

// toolStep dispatches every call of the last assistant message concurrently,
// bounded by the fan-out limit, and appends tool-role messages in request
// order regardless of completion order.
func (t *turn) toolStep(ctx context.Context, calls []core.ToolCallRequest, notify func(i int, done bool, res *core.ToolResult)) {
	results := make([]core.ToolResult, len(calls))

	var g errgroup.Group
	g.SetLimit(t.e.fanOutLimit)
	for i, call := range calls {
		if notify != nil {
			notify(i, false, nil)
		}
		g.Go(func() error {
			results[i] = t.execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	for i, call := range calls {
		if notify != nil {
			notify(i, true, &results[i])
		}
		t.records = append(t.records, core.ToolCallRecord{Request: call, Result: results[i]})
		t.messages = append(t.messages, core.NewToolMessage(results[i]))
	}
	t.iteration++
}

// execute runs one tool call, recovering every failure into a ToolResult.
func (t *turn) execute(ctx context.Context, call core.ToolCallRequest) core.ToolResult {
	if def, ok := t.defsByName[call.Name]; ok {
		if err := t.e.guard.ValidateToolAccess(call.Name, t.cfg.Permissions, def.RequiredPermissions); err != nil {
			return core.ToolResult{CallID: call.ID, Name: call.Name, Error: err.Error()}
		}
	}

	res := t.e.registry.Execute(ctx, call.Name, call.Arguments, t.cfg.Permissions, t.e.toolTimeout)
	res.CallID = call.ID
	return res
}

// finish performs the DONE transition: sanitize the response, write the user
// message and final response back to conversation memory in one atomic
// append, checkpoint if configured, and assemble the ExecutionResult.
func (t *turn) finish(response string) *core.ExecutionResult {
	response = t.e.guard.SanitizeOutput(response)

	final := core.NewAssistantMessage(response)
	t.e.conversations.Append(t.cfg.ID, t.threadID, t.userMsg, final)

	if t.e.checkpoints != nil {
		state := &core.ExecutionState{
			ThreadID:  t.threadID,
			Messages:  t.messages,
			Iteration: t.iteration,
			Stop:      true,
		}
		if err := t.e.checkpoints.Save(t.threadID, state); err != nil {
			t.e.logger.Warn("turn.checkpoint_failed", "thread_id", t.threadID, "error", err.Error())
		}
	}

	t.e.logger.Info("turn.done",
		"agent_id", t.cfg.ID,
		"thread_id", t.threadID,
		"iterations", t.iteration,
		"tool_calls", len(t.records),
		"truncated", t.truncated,
	)

	return &core.ExecutionResult{
		Response:  response,
		ToolCalls: t.records,
		Usage:     t.usage,
		Duration:  time.Since(t.startedAt),
		ThreadID:  t.threadID,
		Steps:     t.steps,
		Truncated: t.truncated,
	}
}
