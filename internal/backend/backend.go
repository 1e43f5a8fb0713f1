package backend

import (
	"context"
	"fmt"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage/memory"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage/mongodb"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
)

// Type defines the type of storage backend
type Type string

const (
	// TypeMemory uses in-memory storage (for testing/development)
	TypeMemory Type = "memory"
	// TypeMongoDB uses MongoDB storage (for production)
	TypeMongoDB Type = "mongodb"
)

// Backend is the persistent store for users, credentials, presentations
// and legal persons.
type Backend = storage.Store

var (
	_ Backend = (*memory.Store)(nil)
	_ Backend = (*mongodb.Store)(nil)
)

// New creates a storage backend based on the configuration
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	storageType := Type(cfg.Storage.Type)

	switch storageType {
	case TypeMemory, "":
		return memory.NewStore(), nil

	case TypeMongoDB:
		store, err := mongodb.NewStore(ctx, &cfg.Storage.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to create MongoDB backend: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}
