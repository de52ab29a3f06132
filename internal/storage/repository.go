package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwulff/guardian-go/internal/health"
)

// KVRepository keeps a reading list as a single JSON array under one key.
type KVRepository struct {
	KV  KV
	Key string

	mu sync.Mutex
}

// NewKVRepository creates a repository for kind on kv.
func NewKVRepository(kv KV, kind health.Kind) *KVRepository {
	return &KVRepository{KV: kv, Key: ReadingsKey(kind)}
}

func (r *KVRepository) load(ctx context.Context) ([]health.Reading, error) {
	var stored []health.StoredReading
	if _, err := r.KV.Load(ctx, r.Key, &stored); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", r.Key, err)
	}
	out := make([]health.Reading, 0, len(stored))
	for i, s := range stored {
		rd, err := s.Reading()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", r.Key, i, err)
		}
		out = append(out, rd)
	}
	return out, nil
}

func (r *KVRepository) save(ctx context.Context, rs []health.Reading) error {
	stored := make([]health.StoredReading, len(rs))
	for i, rd := range rs {
		stored[i] = health.Store(rd)
	}
	if err := r.KV.Save(ctx, r.Key, stored); err != nil {
		return fmt.Errorf("failed to save %s: %w", r.Key, err)
	}
	return nil
}

// List returns the stored readings in insertion order.
func (r *KVRepository) List(ctx context.Context) ([]health.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Append adds a reading to the end of the list.
func (r *KVRepository) Append(ctx context.Context, rd health.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, err := r.load(ctx)
	if err != nil {
		return err
	}
	return r.save(ctx, append(rs, rd))
}

// ReplaceAll overwrites the list.
func (r *KVRepository) ReplaceAll(ctx context.Context, rs []health.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save(ctx, rs)
}

var _ Repository = (*KVRepository)(nil)
