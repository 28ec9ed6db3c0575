package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store persists agent state by id.
//
// Load returns (nil, nil) for unknown ids and for content that fails to
// decode; corruption is logged, never surfaced. Save must be atomic with
// respect to concurrent readers of the same id. Save failures are fatal for
// the turn that triggered them.
type Store interface {
	Load(ctx context.Context, agentID string) (*AgentState, error)
	Save(ctx context.Context, agentID string, st *AgentState) error
	Delete(ctx context.Context, agentID string) error
}

// StoreError wraps a store failure with component context.
type StoreError struct {
	Store   string
	Action  string
	AgentID string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("[%s:%s] agent %s: %v", e.Store, e.Action, e.AgentID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ============================================================================
// IN-MEMORY STORE
// ============================================================================

// MemoryStore keeps states in a map. Handy for tests and ephemeral runs.
// Saves deep-copy through JSON so callers cannot alias stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, agentID string) (*AgentState, error) {
	m.mu.RLock()
	raw, ok := m.states[agentID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var st AgentState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, nil
	}
	return &st, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, agentID string, st *AgentState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return &StoreError{Store: "MemoryStore", Action: "Save", AgentID: agentID, Err: err}
	}
	m.mu.Lock()
	m.states[agentID] = raw
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, agentID string) error {
	m.mu.Lock()
	delete(m.states, agentID)
	m.mu.Unlock()
	return nil
}
