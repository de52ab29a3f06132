// Package boltdb provides a bolt implementation of the storage.Store interface.
// Readings are kept as JSON arrays through storage.KVRepository.
package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/boltdb/bolt"

	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/storage"
)

const bucket = "guardian"

// Store is a single-bucket bolt database.
type Store struct {
	db *bolt.DB

	mu    sync.Mutex
	repos map[health.Kind]*storage.KVRepository
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db, repos: make(map[health.Kind]*storage.KVRepository)}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// Get's result is only valid inside the transaction.
		if raw := tx.Bucket([]byte(bucket)).Get([]byte(key)); raw != nil {
			data = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) Save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

// Readings returns the repository of one reading kind. Repeated calls share
// one repository so appends are serialized.
func (s *Store) Readings(kind health.Kind) storage.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[kind]
	if !ok {
		r = storage.NewKVRepository(s, kind)
		s.repos[kind] = r
	}
	return r
}

var _ storage.Store = (*Store)(nil)
