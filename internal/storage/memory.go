package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jwulff/guardian-go/internal/health"
)

// MemoryKV is an in-process Store. Values are held as JSON so callers see the
// same encoding behavior as the persistent stores.
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string][]byte)}
}

func (m *MemoryKV) Load(ctx context.Context, key string, v any) (bool, error) {
	m.mu.RLock()
	data, ok := m.values[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (m *MemoryKV) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Readings returns a repository backed by this store.
func (m *MemoryKV) Readings(kind health.Kind) Repository {
	return NewKVRepository(m, kind)
}

func (m *MemoryKV) Close() error {
	return nil
}

var _ Store = (*MemoryKV)(nil)
