package tool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/logging"
)

// Registry errors.
var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrToolNotFound  = errors.New("tool not found")
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// DefaultTimeout bounds calls whose tool declares no timeout of its own.
	DefaultTimeout time.Duration
	// Logger receives registration and execution diagnostics.
	Logger logging.Logger
}

// Registry holds the callable tool namespace and executes invocations behind
// permission re-checks and hard timeouts. Definitions never mutate after
// registration, only the name → Tool map itself is guarded.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	defaultTimeout time.Duration
	logger         logging.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		tools:          make(map[string]Tool),
		defaultTimeout: opts.DefaultTimeout,
		logger:         logging.OrNoop(opts.Logger),
	}
}

// Register adds a tool under its name, failing with ErrDuplicateTool when the
// name is taken.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name())
	}
	r.tools[t.Name()] = t
	r.logger.Debug("tool.registered", "tool", t.Name(), "category", t.Category())
	return nil
}

// Lookup resolves a tool by name, failing with ErrToolNotFound.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// Has reports whether a name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Names lists all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateForAgent resolves the requested names to the subset the agent may
// use: registered tools whose required permissions are all granted. Failing
// entries are dropped with a logged reason, never raised as an error; partial
// tool availability is expected. The filtering is idempotent.
func (r *Registry) ValidateForAgent(names []string, granted map[string]bool) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			r.logger.Warn("tool.validate.unknown", "tool", name)
			continue
		}
		if missing := missingPermission(t.RequiredPermissions(), granted); missing != "" {
			r.logger.Warn("tool.validate.denied", "tool", name, "permission", missing)
			continue
		}
		out = append(out, t)
	}
	return out
}

func missingPermission(required []string, granted map[string]bool) string {
	for _, perm := range required {
		if !granted[perm] {
			return perm
		}
	}
	return ""
}

// Execute runs one tool call to completion and always returns a ToolResult;
// tool failures never propagate as errors to the execution loop.
//
// The sequence is: resolve the tool, re-check permissions (defense in depth
// even when ValidateForAgent already filtered), then run under a hard timeout
// whose expiry cancels the underlying call. Panics inside the tool are
// recovered into failed results.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, granted map[string]bool, timeout time.Duration) core.ToolResult {
	res := core.ToolResult{Name: name}

	t, err := r.Lookup(name)
	if err != nil {
		res.Error = fmt.Sprintf("tool %q not found", name)
		return res
	}

	if missing := missingPermission(t.RequiredPermissions(), granted); missing != "" {
		res.Error = fmt.Sprintf("permission denied: tool %q requires %q", name, missing)
		return res
	}

	// A tool's declared timeout wins over the caller's default.
	if declared := t.Timeout(); declared > 0 {
		timeout = declared
	}
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		payload any
		err     error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("tool.panic", "tool", name, "panic", rec, "stack", string(debug.Stack()))
				done <- outcome{err: fmt.Errorf("tool panicked: %v", rec)}
			}
		}()
		payload, err := t.Call(callCtx, args)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		res.Metadata = map[string]any{"duration_ms": time.Since(start).Milliseconds()}
		if out.err != nil {
			r.logger.Warn("tool.call.failed", "tool", name, "error", out.err.Error())
			res.Error = out.err.Error()
			return res
		}
		res.Success = true
		res.Payload = out.payload
		r.logger.Info("tool.call.ok", "tool", name, "duration_ms", time.Since(start).Milliseconds())
		return res

	case <-callCtx.Done():
		// cancel() has fired or will fire; the tool sees a cancelled context.
		res.Metadata = map[string]any{"duration_ms": time.Since(start).Milliseconds()}
		if ctx.Err() != nil {
			res.Error = "cancelled"
		} else {
			res.Error = "timeout"
		}
		r.logger.Warn("tool.call.aborted", "tool", name, "error", res.Error)
		return res
	}
}
