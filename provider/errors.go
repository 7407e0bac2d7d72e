package provider

import (
	"errors"
	"fmt"
)

// Router errors.
var (
	// ErrProviderNotSupported means the provider name has no constructor in
	// the lookup table.
	ErrProviderNotSupported = errors.New("provider not supported")
	// ErrProviderNotConfigured means required credentials are absent.
	ErrProviderNotConfigured = errors.New("provider not configured")
)

// CallError wraps a backend failure. Its message names the backend but the
// wrapped error is for logs only; callers rendering errors to end users
// should not echo it.
type CallError struct {
	Provider string
	Model    string
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s model call failed (model %s): %v", e.Provider, e.Model, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }
