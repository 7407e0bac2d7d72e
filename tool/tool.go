// Package tool implements the tool subsystem: the Tool interface, a generic
// function adapter with schema-validated arguments, the registry that gates
// execution behind permissions and timeouts, and a client for attaching
// externally served tools at run start.
package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/convoke/convoke/core"
)

// Tool is a named, schema-described capability an agent may invoke mid-turn.
//
// Implementations must be safe for concurrent use; the registry dispatches
// calls from many turns at once. Call receives a context that is cancelled
// when the execution timeout elapses or the turn is aborted — long-running
// tools must honor it.
type Tool interface {
	// Name returns the unique registry key (snake_case recommended).
	Name() string

	// Description is shown to models to guide tool selection.
	Description() string

	// Parameters returns the JSON schema describing accepted arguments.
	Parameters() map[string]any

	// Category groups related tools for permission and display purposes.
	Category() string

	// RequiredPermissions lists the capability flags an agent must hold.
	RequiredPermissions() []string

	// Timeout is the maximum execution time for one call. Zero defers to
	// the registry default.
	Timeout() time.Duration

	// Call executes the tool. Errors are converted to failed ToolResults by
	// the registry and never propagate to the execution loop.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Definition renders a tool into its wire-contract description.
func Definition(t Tool) core.ToolDefinition {
	return core.ToolDefinition{
		Name:                t.Name(),
		Description:         t.Description(),
		Parameters:          t.Parameters(),
		Category:            t.Category(),
		RequiredPermissions: t.RequiredPermissions(),
	}
}

// Error represents a failure inside a tool implementation with a stable code
// for categorization.
type Error struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error codes produced by the built-in adapters.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTransport  = "TRANSPORT_ERROR"
)

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}
