// Package core defines the shared data model of the Convoke execution core:
// transcript messages, tool call requests and results, agent configuration,
// per-turn execution state and the final execution result. Higher layers
// (memory, tool, guard, provider, engine) depend on core and never the other
// way around.
package core
