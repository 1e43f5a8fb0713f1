package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// CredentialService handles credential operations
type CredentialService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(store storage.Store, logger *zap.Logger) *CredentialService {
	return &CredentialService{
		store:  store,
		logger: logger.Named("credential-service"),
	}
}

// GetAll retrieves all credentials for a holder
func (s *CredentialService) GetAll(ctx context.Context, holderDID string) ([]*domain.VerifiableCredential, error) {
	if holderDID == "" {
		return nil, errors.New("holder_did is required")
	}

	credentials, err := s.store.Credentials().GetAllByHolder(ctx, holderDID)
	if err != nil {
		s.logger.Error("Failed to get credentials", zap.Error(err), zap.String("holder_did", holderDID))
		return nil, err
	}
	return credentials, nil
}

// GetByIdentifier retrieves a credential by identifier
func (s *CredentialService) GetByIdentifier(ctx context.Context, holderDID, credentialIdentifier string) (*domain.VerifiableCredential, error) {
	if credentialIdentifier == "" {
		return nil, errors.New("credential_identifier is required")
	}

	credential, err := s.store.Credentials().GetByIdentifier(ctx, holderDID, credentialIdentifier)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Failed to get credential", zap.Error(err),
			zap.String("holder_did", holderDID),
			zap.String("credential_id", credentialIdentifier))
	}
	return credential, err
}

// Delete deletes a credential
func (s *CredentialService) Delete(ctx context.Context, holderDID, credentialIdentifier string) error {
	if err := s.store.Credentials().Delete(ctx, holderDID, credentialIdentifier); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Error("Failed to delete credential", zap.Error(err))
		}
		return err
	}

	s.logger.Info("Deleted credential",
		zap.String("holder_did", holderDID),
		zap.String("credential_id", credentialIdentifier))
	return nil
}
