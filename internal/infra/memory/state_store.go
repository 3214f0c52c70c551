package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// StateStore is an in-process implementation of the durable client state
// store. It keeps serialized records in a map; useful for tests and for
// running without Redis.
type StateStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewStateStore() *StateStore {
	return &StateStore{
		records: make(map[string][]byte),
	}
}

func (s *StateStore) Put(_ context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = data
	return nil
}

func (s *StateStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.RLock()
	data, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A record that no longer parses is treated as absent.
		return false, nil
	}
	return true, nil
}

func (s *StateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
