package storage

import (
	"context"
	"sync"

	"faycoin_go/internal/domain"
)

// Memory is a map-backed KVStore. Instances handed the same *Memory share
// state, which stands in for one host's durable storage in tests.
type Memory struct {
	mu      sync.RWMutex
	data    map[string]string
	failSet error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return &domain.StorageError{Op: "set", Key: key, Err: m.failSet}
	}
	m.data[key] = value
	return nil
}

// FailWrites makes every later Set return err. Pass nil to heal.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = err
}

