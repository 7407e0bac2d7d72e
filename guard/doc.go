// Package guard implements the security checks that run around every turn:
// prompt-injection scanning on input, permission enforcement for tool access,
// markup sanitization on output and sliding-window rate limiting. Injection
// and rate-limit violations surface the matched detail so callers can explain
// the refusal; everything else stays internal.
package guard
