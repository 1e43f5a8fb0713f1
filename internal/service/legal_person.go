package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// LegalPersonService registers and looks up issuers and verifiers
type LegalPersonService struct {
	store  storage.Store
	logger *zap.Logger
}

// NewLegalPersonService creates a new LegalPersonService
func NewLegalPersonService(store storage.Store, logger *zap.Logger) *LegalPersonService {
	return &LegalPersonService{
		store:  store,
		logger: logger.Named("legal-person-service"),
	}
}

// Register stores a new issuer or verifier
func (s *LegalPersonService) Register(ctx context.Context, req *domain.CreateLegalPersonRequest) (*domain.LegalPerson, error) {
	if req.DID == "" {
		return nil, fmt.Errorf("%w: did is required", storage.ErrInvalidInput)
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: url must be absolute", storage.ErrInvalidInput)
	}

	lp := &domain.LegalPerson{
		DID:          req.DID,
		URL:          req.URL,
		FriendlyName: req.FriendlyName,
		ClientID:     req.ClientID,
		IsIssuer:     req.IsIssuer,
	}
	if err := s.store.LegalPersons().Create(ctx, lp); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create legal person: %w", err)
	}

	s.logger.Info("Legal person registered",
		zap.String("did", lp.DID),
		zap.String("url", lp.URL),
		zap.Bool("issuer", lp.IsIssuer))
	return lp, nil
}

// GetByDID retrieves a legal person by DID
func (s *LegalPersonService) GetByDID(ctx context.Context, did string) (*domain.LegalPerson, error) {
	return s.store.LegalPersons().GetByDID(ctx, did)
}

// GetAllIssuers lists the registered credential issuers
func (s *LegalPersonService) GetAllIssuers(ctx context.Context) ([]*domain.LegalPerson, error) {
	all, err := s.store.LegalPersons().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get legal persons: %w", err)
	}
	return lo.Filter(all, func(lp *domain.LegalPerson, _ int) bool { return lp.IsIssuer }), nil
}

// GetAll lists every registered issuer and verifier
func (s *LegalPersonService) GetAll(ctx context.Context) ([]*domain.LegalPerson, error) {
	all, err := s.store.LegalPersons().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get legal persons: %w", err)
	}
	return all, nil
}
