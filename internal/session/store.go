// Package session keeps per-user protocol state for the issuance and
// presentation flows.
package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no session exists for a key.
	ErrNotFound = errors.New("session not found")
	// ErrVersionConflict is returned when a compare-and-swap observes a newer version.
	ErrVersionConflict = errors.New("session version conflict")
)

// Entry is a stored value together with its version.
// Versions start at 1 and grow by one on every write to the key.
type Entry[T any] struct {
	Value   T
	Version uint64
}

// Store provides versioned session storage.
// Implementations must be safe for concurrent use.
type Store[T any] interface {
	// Get returns the current entry for key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry[T], error)

	// Put writes value unconditionally and returns the new version.
	Put(ctx context.Context, key string, value T) (uint64, error)

	// CompareAndSwap writes value only if the stored version equals version.
	// A version of 0 means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key string, version uint64, value T) (uint64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources.
	Close() error
}

// Policy selects how read-modify-write cycles are committed.
type Policy string

const (
	// LastWriteWins commits with Put; a concurrent flow for the same key may be overwritten.
	LastWriteWins Policy = "last_write_wins"
	// CompareAndSwap commits with CompareAndSwap and retries on conflict.
	CompareAndSwap Policy = "compare_and_swap"
)

// DefaultMaxRetries bounds compare-and-swap retries.
const DefaultMaxRetries = 3

// Manager applies a write policy on top of a Store.
type Manager[T any] struct {
	store      Store[T]
	policy     Policy
	maxRetries int
}

// NewManager creates a Manager. An empty policy means LastWriteWins.
func NewManager[T any](store Store[T], policy Policy) *Manager[T] {
	if policy == "" {
		policy = LastWriteWins
	}
	return &Manager[T]{store: store, policy: policy, maxRetries: DefaultMaxRetries}
}

// Policy returns the configured write policy.
func (m *Manager[T]) Policy() Policy {
	return m.policy
}

// Load returns the current value for key.
func (m *Manager[T]) Load(ctx context.Context, key string) (T, error) {
	var zero T
	entry, err := m.store.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	return entry.Value, nil
}

// Replace stores value for key, overwriting any existing session, and
// returns the value it replaced (nil when there was none).
func (m *Manager[T]) Replace(ctx context.Context, key string, value T) (*T, error) {
	for attempt := 0; ; attempt++ {
		var previous *T
		var version uint64
		entry, err := m.store.Get(ctx, key)
		switch {
		case err == nil:
			previous = &entry.Value
			version = entry.Version
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}

		if m.policy == LastWriteWins {
			if _, err := m.store.Put(ctx, key, value); err != nil {
				return nil, err
			}
			return previous, nil
		}

		_, err = m.store.CompareAndSwap(ctx, key, version, value)
		if err == nil {
			return previous, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= m.maxRetries {
			return nil, err
		}
	}
}

// Update loads the session for key, applies fn and commits the result.
// It returns ErrNotFound when there is no session. Under CompareAndSwap
// fn may run more than once and must not have side effects.
func (m *Manager[T]) Update(ctx context.Context, key string, fn func(*T) error) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		entry, err := m.store.Get(ctx, key)
		if err != nil {
			return zero, err
		}

		value := entry.Value
		if err := fn(&value); err != nil {
			return zero, err
		}

		if m.policy == LastWriteWins {
			if _, err := m.store.Put(ctx, key, value); err != nil {
				return zero, err
			}
			return value, nil
		}

		_, err = m.store.CompareAndSwap(ctx, key, entry.Version, value)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, err
		}
		if attempt >= m.maxRetries {
			return zero, fmt.Errorf("update %s after %d attempts: %w", key, attempt+1, err)
		}
	}
}
