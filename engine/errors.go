package engine

// Error codes for fatal turn failures.
const (
	CodeInvalidConfig = "invalid_config"
	CodeBlocked       = "blocked"
	CodeRateLimited   = "rate_limited"
	CodeProvider      = "provider_error"
)

// Error is the structured failure a caller receives when a turn cannot
// complete. For guard rejections the message echoes the specific reason so
// the caller can explain the refusal; for provider failures it stays generic
// and the detail is only logged.
type Error struct {
	Code    string
	Message string
	err     error
}

func (e *Error) Error() string { return e.Message }

// Unwrap exposes the underlying typed error for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.err }

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}
