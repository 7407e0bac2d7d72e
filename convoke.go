// Package convoke provides a high-level façade over the agent execution
// core: the turn-taking engine, tool registry, memory stores, security guard
// and provider router. Most applications interact with this package by:
//  1. Creating a Convoke via New() (optionally overriding defaults)
//  2. Registering built-in tools
//  3. Running agent turns synchronously (Run) or incrementally (Stream)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply real provider credentials
// and a structured logger.
package convoke

import (
	"context"

	"github.com/convoke/convoke/config"
	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/engine"
	"github.com/convoke/convoke/guard"
	"github.com/convoke/convoke/logging"
	"github.com/convoke/convoke/memory"
	"github.com/convoke/convoke/prompt"
	"github.com/convoke/convoke/provider"
	"github.com/convoke/convoke/provider/anthropic"
	"github.com/convoke/convoke/provider/google"
	"github.com/convoke/convoke/provider/openai"
	"github.com/convoke/convoke/tool"
)

// Options configures the Convoke instance.
type Options struct {
	// Config supplies the recognized configuration surface. Defaults to
	// config.FromEnv().
	Config *config.Config

	// Semantic is the external long-term recall store. Defaults to the
	// in-memory implementation.
	Semantic core.SemanticStore

	// Checkpoints optionally persists execution state between turns.
	Checkpoints core.CheckpointStore

	// Logger defaults to the no-op logger.
	Logger logging.Logger
}

// Convoke is the high-level façade aggregating the engine and its
// collaborators behind one composition point.
type Convoke struct {
	opts     Options
	router   *provider.Router
	registry *tool.Registry
	engine   *engine.Engine
}

// New creates a Convoke instance with optional overrides. Any unset
// collaborator is initialized with an in-memory implementation, and the
// known provider adapters are installed into the router table.
func New(optFns ...func(o *Options)) (*Convoke, error) {
	opts := Options{
		Config:   config.FromEnv(),
		Semantic: memory.NewInMemorySemanticStore(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	cfg := opts.Config
	logger := logging.OrNoop(opts.Logger)

	settings := make(map[string]provider.Settings, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		settings[name] = provider.Settings{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
			Timeout:      pc.Timeout,
			MaxRetries:   pc.MaxRetries,
		}
	}
	router := provider.NewRouter(settings, func(o *provider.RouterOptions) {
		o.Logger = logger
	})
	router.RegisterProvider("openai", openai.New)
	router.RegisterProvider("anthropic", anthropic.New)
	router.RegisterProvider("google", google.New)

	registry := tool.NewRegistry(func(o *tool.RegistryOptions) {
		o.DefaultTimeout = cfg.ToolTimeout
		o.Logger = logger
	})

	g, err := guard.New(func(o *guard.Options) {
		o.Enabled = cfg.Guard.PromptGuardEnabled
		o.Patterns = cfg.Guard.BlockedPatterns
		o.SymbolRatioThreshold = cfg.Guard.SymbolRatioThreshold
		o.AllowedTools = cfg.Guard.AllowedTools
		o.DeniedTools = cfg.Guard.DeniedTools
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	conversations := memory.NewConversationStore(func(o *memory.ConversationOptions) {
		o.MaxMessages = cfg.Memory.ConversationMaxMessages
		o.TTL = cfg.ConversationTTL()
		o.Logger = logger
	})
	sessions := memory.NewSessionStore(func(o *memory.SessionOptions) {
		o.DefaultTTL = cfg.SessionTTL()
	})

	builder := prompt.NewBuilder(func(o *prompt.Options) {
		o.Semantic = opts.Semantic
		o.RecallResults = cfg.Memory.VectorKResults
		o.Logger = logger
	})

	eng := engine.New(router, registry, func(o *engine.Options) {
		o.Conversations = conversations
		o.Sessions = sessions
		o.Prompt = builder
		o.Guard = g
		o.Limiter = guard.NewRateLimiter()
		o.Checkpoints = opts.Checkpoints
		o.RateLimit = cfg.RateLimitRequestsPerMinute
		o.FanOutLimit = cfg.ToolFanOutLimit
		o.ToolTimeout = cfg.ToolTimeout
		o.Logger = logger
	})

	return &Convoke{
		opts:     opts,
		router:   router,
		registry: registry,
		engine:   eng,
	}, nil
}

// RegisterTool adds a built-in tool to the registry. Registration fails with
// tool.ErrDuplicateTool if the name is taken.
func (c *Convoke) RegisterTool(t tool.Tool) error { return c.registry.Register(t) }

// Tools lists the registered tool names.
func (c *Convoke) Tools() []string { return c.registry.Names() }

// Engine exposes the underlying engine for advanced callers.
func (c *Convoke) Engine() *engine.Engine { return c.engine }

// Run executes one blocking agent turn and returns the final result.
// An empty threadID starts a fresh thread whose id is reported on the result.
func (c *Convoke) Run(ctx context.Context, cfg core.AgentConfig, message, threadID string) (*core.ExecutionResult, error) {
	return c.engine.Run(ctx, cfg, message, threadID)
}

// Stream executes one agent turn incrementally, emitting token, tool_start,
// tool_end, error and done events in order.
func (c *Convoke) Stream(ctx context.Context, cfg core.AgentConfig, message, threadID string) <-chan engine.Event {
	return c.engine.Stream(ctx, cfg, message, threadID)
}

// RunSync is a convenience helper that drains a Stream call, concatenating
// tokens, and returns the final result.
func (c *Convoke) RunSync(ctx context.Context, cfg core.AgentConfig, message, threadID string) (*core.ExecutionResult, error) {
	for ev := range c.Stream(ctx, cfg, message, threadID) {
		switch ev.Type {
		case engine.EventDone:
			return ev.Final, nil
		case engine.EventError:
			return nil, ev.Err
		}
	}
	return nil, context.Canceled
}
