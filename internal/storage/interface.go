package storage

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

// Common errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabase      = errors.New("database error")
)

// UserStore defines the interface for user storage operations
type UserStore interface {
	// Create creates a new user
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id domain.UserID) (*domain.User, error)

	// GetByUsername retrieves a user by username
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// GetByDID retrieves a user by DID
	GetByDID(ctx context.Context, did string) (*domain.User, error)

	// GetAll retrieves all users
	GetAll(ctx context.Context) ([]*domain.User, error)

	// Update updates a user
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user
	Delete(ctx context.Context, id domain.UserID) error
}

// CredentialStore defines the interface for credential storage operations
type CredentialStore interface {
	// Create creates a new credential
	Create(ctx context.Context, credential *domain.VerifiableCredential) error

	// GetByIdentifier retrieves a credential by credential identifier
	GetByIdentifier(ctx context.Context, holderDID, credentialIdentifier string) (*domain.VerifiableCredential, error)

	// GetAllByHolder retrieves all credentials for a holder
	GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiableCredential, error)

	// Delete deletes a credential
	Delete(ctx context.Context, holderDID, credentialIdentifier string) error
}

// PresentationStore defines the interface for presentation storage operations
type PresentationStore interface {
	// Create creates a new presentation
	Create(ctx context.Context, presentation *domain.VerifiablePresentation) error

	// GetByIdentifier retrieves a presentation by presentation identifier
	GetByIdentifier(ctx context.Context, holderDID, presentationIdentifier string) (*domain.VerifiablePresentation, error)

	// GetAllByHolder retrieves all presentations for a holder
	GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiablePresentation, error)

	// Delete deletes a presentation
	Delete(ctx context.Context, holderDID, presentationIdentifier string) error
}

// LegalPersonStore defines the interface for issuer and verifier registration
type LegalPersonStore interface {
	// Create registers a new legal person
	Create(ctx context.Context, lp *domain.LegalPerson) error

	// GetByDID retrieves a legal person by DID
	GetByDID(ctx context.Context, did string) (*domain.LegalPerson, error)

	// GetByURL retrieves a legal person by its base URL
	GetByURL(ctx context.Context, url string) (*domain.LegalPerson, error)

	// GetAll retrieves all legal persons
	GetAll(ctx context.Context) ([]*domain.LegalPerson, error)
}

// Store aggregates all storage interfaces
type Store interface {
	Users() UserStore
	Credentials() CredentialStore
	Presentations() PresentationStore
	LegalPersons() LegalPersonStore

	// Close closes the storage connection
	Close() error

	// Ping checks if the storage is alive
	Ping(ctx context.Context) error
}
