package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps encoded documents in a map. Used for tests and throwaway dry runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte

	// SaveErr, when set, is returned (wrapped) by every Save.
	SaveErr error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Load decodes the stored copy of key into v.
func (s *MemoryStore) Load(_ context.Context, key string, v any) error {
	s.mu.RLock()
	data, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

// Save stores an encoded copy of v.
func (s *MemoryStore) Save(_ context.Context, key string, v any) error {
	if s.SaveErr != nil {
		return fmt.Errorf("%w: save %s: %v", ErrPersistence, key, s.SaveErr)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrPersistence, key, err)
	}
	s.mu.Lock()
	s.docs[key] = data
	s.mu.Unlock()
	return nil
}

// Put stores raw bytes under key, bypassing encoding.
func (s *MemoryStore) Put(key string, raw []byte) {
	s.mu.Lock()
	s.docs[key] = raw
	s.mu.Unlock()
}
