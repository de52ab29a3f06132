// Package storage provides persistence abstractions for the health log.
package storage

import (
	"context"
	"fmt"

	"github.com/jwulff/guardian-go/internal/health"
)

// Well-known keys.
const (
	KeyPatient     = "patient"
	KeyMedications = "medications"
	KeySyncTopic   = "sync/topic"
	KeySyncState   = "sync/state"
)

// ReadingsKey is the key holding the readings of one kind.
func ReadingsKey(kind health.Kind) string {
	return "readings/" + string(kind)
}

// KV stores JSON-encodable values by key.
type KV interface {
	// Load decodes the value at key into v. It reports false, and leaves v
	// untouched, when the key does not exist.
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error

	// Lifecycle
	Close() error
}

// Repository is an ordered list of readings of one kind.
type Repository interface {
	List(ctx context.Context) ([]health.Reading, error)
	Append(ctx context.Context, r health.Reading) error
	ReplaceAll(ctx context.Context, rs []health.Reading) error
}

// Store is a KV that also hands out reading repositories.
type Store interface {
	KV
	Readings(kind health.Kind) Repository
}

// Get loads key into v and returns ErrNotFound when it is missing.
func Get(ctx context.Context, kv KV, key string, v any) error {
	ok, err := kv.Load(ctx, key, v)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !ok {
		return ErrNotFound{Resource: "key", ID: key}
	}
	return nil
}

// ErrNotFound is returned when a record is not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e ErrNotFound) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	_, ok := err.(ErrNotFound)
	return ok
}
