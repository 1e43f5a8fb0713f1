package backend

import (
	"context"
	"testing"

	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
)

func TestNew_MemoryBackend(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type: "memory",
		},
	}

	backend, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = backend.Close() }()

	if backend.Users() == nil {
		t.Error("expected Users() to return non-nil store")
	}
	if backend.Credentials() == nil {
		t.Error("expected Credentials() to return non-nil store")
	}
	if backend.Presentations() == nil {
		t.Error("expected Presentations() to return non-nil store")
	}
	if backend.LegalPersons() == nil {
		t.Error("expected LegalPersons() to return non-nil store")
	}
	if err := backend.Ping(context.Background()); err != nil {
		t.Errorf("expected Ping() to succeed, got %v", err)
	}
}

func TestNew_DefaultToMemory(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type: "",
		},
	}

	backend, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected no error for empty type, got %v", err)
	}
	defer func() { _ = backend.Close() }()

	if backend.Users() == nil {
		t.Error("expected Users() to return non-nil store")
	}
}

func TestNew_UnsupportedType(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Type: "sqlite",
		},
	}

	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for unsupported storage type")
	}
}
