package guard

import (
	"fmt"
	"time"
)

// InjectionError reports a blocked input. Pattern carries the matched
// expression (or a heuristic label) so the caller can explain the refusal.
type InjectionError struct {
	Pattern   string
	Heuristic bool
}

func (e *InjectionError) Error() string {
	if e.Heuristic {
		return fmt.Sprintf("prompt injection suspected: %s", e.Pattern)
	}
	return fmt.Sprintf("prompt injection detected: input matches blocked pattern %q", e.Pattern)
}

// PermissionError reports a denied tool invocation.
type PermissionError struct {
	Tool   string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied for tool %s: %s", e.Tool, e.Reason)
}

// RateLimitError reports an identifier exceeding its sliding-window budget.
type RateLimitError struct {
	Identifier string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per %s (retry in %s)",
		e.Identifier, e.Limit, e.Window, e.RetryAfter.Round(time.Second))
}
