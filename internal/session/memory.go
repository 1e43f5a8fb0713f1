package session

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

type memoryEntry struct {
	data    []byte
	version uint64
}

// MemoryStore is an in-process Store. Values are stored JSON encoded so
// callers never share memory with the stored copy.
type MemoryStore[T any] struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	logger  *zap.Logger
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore[T any](logger *zap.Logger) *MemoryStore[T] {
	return &MemoryStore[T]{
		entries: make(map[string]memoryEntry),
		logger:  logger.Named("memory_store"),
	}
}

func (m *MemoryStore[T]) Get(ctx context.Context, key string) (*Entry[T], error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var value T
	if err := json.Unmarshal(e.data, &value); err != nil {
		return nil, err
	}
	return &Entry[T]{Value: value, Version: e.version}, nil
}

func (m *MemoryStore[T]) Put(ctx context.Context, key string, value T) (uint64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	version := m.entries[key].version + 1
	m.entries[key] = memoryEntry{data: data, version: version}
	return version, nil
}

func (m *MemoryStore[T]) CompareAndSwap(ctx context.Context, key string, version uint64, value T) (uint64, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.entries[key].version
	if current != version {
		m.logger.Debug("Version conflict",
			zap.String("key", key),
			zap.Uint64("expected", version),
			zap.Uint64("current", current),
		)
		return 0, ErrVersionConflict
	}

	m.entries[key] = memoryEntry{data: data, version: current + 1}
	return current + 1, nil
}

func (m *MemoryStore[T]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryStore[T]) Close() error {
	return nil
}
