package service

import (
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
)

// Services aggregates the account and storage services behind the HTTP API.
// The protocol flows live in the oid4vci and oid4vp orchestrators.
type Services struct {
	User         *UserService
	Credential   *CredentialService
	Presentation *PresentationService
	LegalPerson  *LegalPersonService
}

// NewServices creates a new Services instance
func NewServices(store storage.Store, cfg *config.Config, logger *zap.Logger) *Services {
	return &Services{
		User:         NewUserService(store, cfg, logger),
		Credential:   NewCredentialService(store, logger),
		Presentation: NewPresentationService(store, logger),
		LegalPerson:  NewLegalPersonService(store, logger),
	}
}
