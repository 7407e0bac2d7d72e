package memory

import (
	"sync"
	"time"
)

// SessionOptions configures a SessionStore.
type SessionOptions struct {
	// DefaultTTL applies when Set is called without an explicit ttl.
	// Zero means entries never expire unless a ttl is given.
	DefaultTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type sessionEntry struct {
	value     any
	expiresAt time.Time // zero value: never expires
}

func (e sessionEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// SessionStore is the ephemeral per-(agent, session) key/value scratch space.
// Expired entries are invisible to Get/Exists/Keys and physically removed on
// the next write to the same session.
type SessionStore struct {
	mu         sync.RWMutex
	sessions   map[string]map[string]sessionEntry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewSessionStore constructs an empty session store.
func NewSessionStore(optFns ...func(o *SessionOptions)) *SessionStore {
	opts := SessionOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &SessionStore{
		sessions:   make(map[string]map[string]sessionEntry),
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
	}
}

func sessionKey(agentID, sessionID string) string { return agentID + "/" + sessionID }

// Set stores a value. The optional ttl overrides the store default; an
// explicit ttl of zero makes the entry expire immediately. A sweep of the
// session's expired entries runs on every write.
func (s *SessionStore) Set(agentID, sessionID, key string, value any, ttl ...time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := sessionKey(agentID, sessionID)
	sess, ok := s.sessions[sk]
	if !ok {
		sess = make(map[string]sessionEntry)
		s.sessions[sk] = sess
	}

	now := s.now()
	for k, e := range sess {
		if e.expired(now) {
			delete(sess, k)
		}
	}

	effective := s.defaultTTL
	explicit := false
	if len(ttl) > 0 {
		effective = ttl[0]
		explicit = true
	}

	entry := sessionEntry{value: value}
	if explicit || effective > 0 {
		entry.expiresAt = now.Add(effective)
	}
	sess[key] = entry
}

// Get returns the stored value or the fallback when the key is missing or
// expired.
func (s *SessionStore) Get(agentID, sessionID, key string, fallback any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return fallback
	}
	e, ok := sess[key]
	if !ok || e.expired(s.now()) {
		return fallback
	}
	return e.value
}

// Exists reports whether a live entry is present for the key.
func (s *SessionStore) Exists(agentID, sessionID, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return false
	}
	e, ok := sess[key]
	return ok && !e.expired(s.now())
}

// Keys lists the live keys of a session.
func (s *SessionStore) Keys(agentID, sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return nil
	}
	now := s.now()
	keys := make([]string, 0, len(sess))
	for k, e := range sess {
		if !e.expired(now) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Delete removes a key. Deleting a missing key is a no-op.
func (s *SessionStore) Delete(agentID, sessionID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionKey(agentID, sessionID)]; ok {
		delete(sess, key)
	}
}

// State returns a snapshot of all live key/value pairs of a session, used by
// the prompt builder for template expansion.
func (s *SessionStore) State(agentID, sessionID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey(agentID, sessionID)]
	if !ok {
		return map[string]any{}
	}
	now := s.now()
	out := make(map[string]any, len(sess))
	for k, e := range sess {
		if !e.expired(now) {
			out[k] = e.value
		}
	}
	return out
}
