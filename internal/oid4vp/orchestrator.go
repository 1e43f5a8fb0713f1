// Package oid4vp drives OpenID for Verifiable Presentations flows on
// behalf of wallet users.
package oid4vp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/metrics"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/oid4vci"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/presexch"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/session"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

// Session is the presentation state of one user, replaced by every new
// verifier request.
type Session struct {
	PresentationDefinition *presexch.PresentationDefinition `json:"presentation_definition,omitempty"`
	Audience               string                           `json:"audience"`
	Nonce                  string                           `json:"nonce"`
	RedirectURI            string                           `json:"redirect_uri"`
	State                  string                           `json:"state,omitempty"`
}

// WalletProvider signs for users and matches credentials to descriptors.
type WalletProvider interface {
	SignerFor(ctx context.Context, username string) (*wallet.Signer, error)
	MatchDescriptor(descriptor presexch.InputDescriptor, credential string) (bool, error)
}

// CredentialSource lists a holder's credentials.
type CredentialSource interface {
	GetAllByHolder(ctx context.Context, holderDID string) ([]*domain.VerifiableCredential, error)
}

// PresentationSink records delivered presentations.
type PresentationSink interface {
	Create(ctx context.Context, presentation *domain.VerifiablePresentation) error
}

// Deps are the collaborators of the Orchestrator. Metrics may be nil.
type Deps struct {
	Sessions      session.Store[Session]
	WritePolicy   session.Policy
	Wallet        WalletProvider
	Credentials   CredentialSource
	Presentations PresentationSink
	IssuerState   oid4vci.IssuerStateReader
	Parser        *protocol.RequestParser
	Poster        *protocol.DirectPoster
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// Orchestrator answers verifier authorization requests.
type Orchestrator struct {
	sessions      *session.Manager[Session]
	wallet        WalletProvider
	credentials   CredentialSource
	presentations PresentationSink
	issuerState   oid4vci.IssuerStateReader
	parser        *protocol.RequestParser
	poster        *protocol.DirectPoster
	metrics       *metrics.Metrics
	logger        *zap.Logger

	wg sync.WaitGroup
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		sessions:      session.NewManager(deps.Sessions, deps.WritePolicy),
		wallet:        deps.Wallet,
		credentials:   deps.Credentials,
		presentations: deps.Presentations,
		issuerState:   deps.IssuerState,
		parser:        deps.Parser,
		poster:        deps.Poster,
		metrics:       deps.Metrics,
		logger:        deps.Logger.Named("oid4vp"),
	}
}

// Close waits for pending presentation records to be written.
func (o *Orchestrator) Close() {
	o.wg.Wait()
}

func (o *Orchestrator) signer(ctx context.Context, did, username string) (*wallet.Signer, error) {
	signer, err := o.wallet.SignerFor(ctx, username)
	if err != nil {
		return nil, err
	}
	if did != "" && signer.DID() != did {
		return nil, fmt.Errorf("%w: DID %s is not held by %s", protocol.ErrState, did, username)
	}
	return signer, nil
}

func (o *Orchestrator) storeSession(ctx context.Context, username string, sess Session) error {
	if _, err := o.sessions.Replace(ctx, username, sess); err != nil {
		return fmt.Errorf("failed to store verification session: %w", err)
	}
	return nil
}

func (o *Orchestrator) loadSession(ctx context.Context, username string) (Session, error) {
	sess, err := o.sessions.Load(ctx, username)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: no verification session for %s", protocol.ErrState, username)
	}
	return sess, err
}
