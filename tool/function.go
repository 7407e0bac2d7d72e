package tool

import (
	"context"
	"time"
)

// FunctionOptions configures a FunctionTool.
type FunctionOptions struct {
	Category            string
	RequiredPermissions []string
	Timeout             time.Duration
}

// FunctionTool adapts a plain Go function into a Tool. Arguments are
// validated against the declared schema before the function runs; failures
// surface as *Error with a VALIDATION_ERROR code. A FunctionTool has no
// mutable state after construction and is safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	category    string
	permissions []string
	timeout     time.Duration
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

var _ Tool = (*FunctionTool)(nil)

// NewFunctionTool constructs a FunctionTool from an explicit schema.
//
// Example:
//
//	sum := tool.NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []any{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	opts := FunctionOptions{Category: "general"}
	for _, f := range optFns {
		f(&opts)
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		category:    opts.Category,
		permissions: opts.RequiredPermissions,
		timeout:     opts.Timeout,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from an argument
// struct via reflection.
func NewFunctionToolFromStruct(
	name, description string,
	argsType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, SchemaFromStruct(argsType), fn, optFns...)
}

func (t *FunctionTool) Name() string                  { return t.name }
func (t *FunctionTool) Description() string           { return t.description }
func (t *FunctionTool) Parameters() map[string]any    { return t.parameters }
func (t *FunctionTool) Category() string              { return t.category }
func (t *FunctionTool) RequiredPermissions() []string { return t.permissions }
func (t *FunctionTool) Timeout() time.Duration        { return t.timeout }

// Call validates args against the declared schema, then invokes the wrapped
// function. Errors keep their *Error shape when the function returns one.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	if err := ValidateArguments(args, t.parameters); err != nil {
		return nil, &Error{Tool: t.name, Message: err.Error(), Code: CodeValidation}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*Error); ok {
			return nil, toolErr
		}
		return nil, &Error{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}
