package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// PresentationService exposes the presentations a holder has made.
type PresentationService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewPresentationService creates a new PresentationService
func NewPresentationService(store storage.Store, logger *zap.Logger) *PresentationService {
	return &PresentationService{
		store:  store,
		logger: logger.Named("presentation-service"),
	}
}

// GetAll retrieves all presentations for a holder
func (s *PresentationService) GetAll(ctx context.Context, holderDID string) ([]*domain.VerifiablePresentation, error) {
	if holderDID == "" {
		return nil, errors.New("holder_did is required")
	}
	return s.store.Presentations().GetAllByHolder(ctx, holderDID)
}

// GetByIdentifier retrieves a presentation by identifier
func (s *PresentationService) GetByIdentifier(ctx context.Context, holderDID, presentationIdentifier string) (*domain.VerifiablePresentation, error) {
	presentation, err := s.store.Presentations().GetByIdentifier(ctx, holderDID, presentationIdentifier)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Failed to get presentation", zap.Error(err),
			zap.String("presentation_id", presentationIdentifier))
	}
	return presentation, err
}
