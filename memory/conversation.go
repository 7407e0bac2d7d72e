package memory

import (
	"sync"
	"time"

	"github.com/convoke/convoke/core"
	"github.com/convoke/convoke/logging"
)

// ConversationOptions configures a ConversationStore.
type ConversationOptions struct {
	// MaxMessages bounds each thread; oldest entries are evicted first.
	MaxMessages int
	// TTL expires entries lazily on read. Zero keeps entries forever.
	TTL time.Duration
	// Logger receives eviction diagnostics.
	Logger logging.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type thread struct {
	mu       sync.Mutex
	messages []core.Message
}

// ConversationStore keeps the per-(agent, thread) message transcript. Appends
// trim to MaxMessages, reads lazily evict entries older than TTL. All
// mutations on one thread are serialized by a per-thread mutex so concurrent
// turns on the same thread id cannot interleave history.
type ConversationStore struct {
	mu      sync.Mutex
	threads map[string]*thread

	maxMessages int
	ttl         time.Duration
	logger      logging.Logger
	now         func() time.Time
}

// NewConversationStore constructs an empty store.
func NewConversationStore(optFns ...func(o *ConversationOptions)) *ConversationStore {
	opts := ConversationOptions{
		MaxMessages: 50,
		TTL:         24 * time.Hour,
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxMessages < 1 {
		opts.MaxMessages = 1
	}
	return &ConversationStore{
		threads:     make(map[string]*thread),
		maxMessages: opts.MaxMessages,
		ttl:         opts.TTL,
		logger:      logging.OrNoop(opts.Logger),
		now:         opts.Now,
	}
}

func threadKey(agentID, threadID string) string { return agentID + "/" + threadID }

func (s *ConversationStore) thread(agentID, threadID string) *thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := threadKey(agentID, threadID)
	t, ok := s.threads[key]
	if !ok {
		t = &thread{}
		s.threads[key] = t
	}
	return t
}

// Append adds messages to a thread in order, then trims to the configured
// bound. Passing several messages appends them atomically: either all of them
// enter the transcript or, on an earlier cancellation, none did.
func (s *ConversationStore) Append(agentID, threadID string, msgs ...core.Message) {
	if len(msgs) == 0 {
		return
	}
	t := s.thread(agentID, threadID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, msgs...)
	if over := len(t.messages) - s.maxMessages; over > 0 {
		s.logger.Debug("conversation.trim", "agent", agentID, "thread", threadID, "evicted", over)
		t.messages = append([]core.Message(nil), t.messages[over:]...)
	}
}

// Get returns the live (non-expired) ordered transcript of a thread. Expired
// entries are evicted as a side effect; the returned slice is a copy.
func (s *ConversationStore) Get(agentID, threadID string) []core.Message {
	t := s.thread(agentID, threadID)
	t.mu.Lock()
	defer t.mu.Unlock()

	s.evictExpiredLocked(t)
	out := make([]core.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// evictExpiredLocked drops entries older than the TTL. Messages are in
// insertion order, so the survivors are a suffix.
func (s *ConversationStore) evictExpiredLocked(t *thread) {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	idx := 0
	for idx < len(t.messages) && !t.messages[idx].CreatedAt.After(cutoff) {
		idx++
	}
	if idx > 0 {
		t.messages = append([]core.Message(nil), t.messages[idx:]...)
	}
}

// Clear removes a thread entirely.
func (s *ConversationStore) Clear(agentID, threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadKey(agentID, threadID))
}

// Threads returns the keys of all known threads, mainly for diagnostics.
func (s *ConversationStore) Threads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.threads))
	for k := range s.threads {
		keys = append(keys, k)
	}
	return keys
}
