package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/presexch"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
)

// ErrNoKey is returned when a user has no wallet key.
var ErrNoKey = errors.New("user has no wallet key")

// Provider resolves users to their signing keys.
type Provider struct {
	users  storage.UserStore
	logger *zap.Logger
}

// NewProvider creates a new Provider
func NewProvider(users storage.UserStore, logger *zap.Logger) *Provider {
	return &Provider{
		users:  users,
		logger: logger.Named("wallet"),
	}
}

// SignerFor returns the signer of the named user.
func (p *Provider) SignerFor(ctx context.Context, username string) (*Signer, error) {
	user, err := p.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load user %s: %w", username, err)
	}
	if len(user.Keys) == 0 {
		return nil, ErrNoKey
	}

	key, err := ParseKey(user.Keys)
	if err != nil {
		p.logger.Error("Stored wallet key is unusable", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	return NewSigner(key)
}

// MatchDescriptor reports whether a stored credential satisfies the descriptor.
// Credentials that cannot be decoded never match.
func (p *Provider) MatchDescriptor(descriptor presexch.InputDescriptor, credential string) (bool, error) {
	doc, err := presexch.DecodeCredential(credential)
	if err != nil {
		p.logger.Debug("Skipping undecodable credential", zap.Error(err))
		return false, nil
	}
	return presexch.MatchDescriptor(descriptor, doc)
}

// JWKS returns the public keys of every user as a JWK set.
func (p *Provider) JWKS(ctx context.Context) (jwk.Set, error) {
	users, err := p.users.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	for _, user := range users {
		if len(user.Keys) == 0 {
			continue
		}
		key, err := ParseKey(user.Keys)
		if err != nil {
			p.logger.Warn("Skipping unusable wallet key", zap.String("username", user.Username), zap.Error(err))
			continue
		}
		pub, err := key.PublicJWK()
		if err != nil {
			p.logger.Warn("Skipping unusable wallet key", zap.String("username", user.Username), zap.Error(err))
			continue
		}
		if err := set.AddKey(pub); err != nil {
			return nil, err
		}
	}
	return set, nil
}
