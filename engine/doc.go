// Package engine implements the agent execution loop: the per-turn state
// machine that drives a chat model through zero or more tool invocations to
// a final answer, backed by the guard, registry, memory and provider
// subsystems.
package engine
