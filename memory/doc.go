// Package memory implements the bounded conversation transcript store and the
// ephemeral per-session key/value store. Both are in-memory, concurrency-safe
// and keyed by (agent, thread) respectively (agent, session) so unrelated
// turns never contend. Long-term semantic recall is an external collaborator
// reached through core.SemanticStore; a naive substring implementation ships
// here for tests and demos.
package memory
