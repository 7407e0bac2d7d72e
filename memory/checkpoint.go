package memory

import (
	"sync"

	"github.com/convoke/convoke/core"
)

// InMemoryCheckpointStore keeps execution-state checkpoints keyed by thread
// id. States are stored as deep-enough copies so callers can keep mutating
// their own instance after Save.
type InMemoryCheckpointStore struct {
	mu     sync.RWMutex
	states map[string]core.ExecutionState
}

var _ core.CheckpointStore = (*InMemoryCheckpointStore)(nil)

// NewInMemoryCheckpointStore constructs an empty checkpoint store.
func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{states: make(map[string]core.ExecutionState)}
}

// Save stores a snapshot of the state.
func (s *InMemoryCheckpointStore) Save(threadID string, state *core.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := *state
	snapshot.Messages = append([]core.Message(nil), state.Messages...)
	s.states[threadID] = snapshot
	return nil
}

// Load returns a copy of the stored state, if any.
func (s *InMemoryCheckpointStore) Load(threadID string) (*core.ExecutionState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[threadID]
	if !ok {
		return nil, false, nil
	}
	out := st
	out.Messages = append([]core.Message(nil), st.Messages...)
	return &out, true, nil
}

// Delete removes a checkpoint.
func (s *InMemoryCheckpointStore) Delete(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, threadID)
	return nil
}
