// Package oid4vci drives OpenID for Verifiable Credential Issuance flows
// on behalf of wallet users.
package oid4vci

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/metrics"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/session"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

// LegalPersonResolver finds registered issuers.
type LegalPersonResolver interface {
	GetByDID(ctx context.Context, did string) (*domain.LegalPerson, error)
	GetByURL(ctx context.Context, url string) (*domain.LegalPerson, error)
}

// WalletProvider resolves a user to their signing key.
type WalletProvider interface {
	SignerFor(ctx context.Context, username string) (*wallet.Signer, error)
}

// CredentialSink persists issued credentials.
type CredentialSink interface {
	Create(ctx context.Context, credential *domain.VerifiableCredential) error
}

// Notifier tells a user that a credential was stored.
type Notifier interface {
	NotifyCredentialStored(ctx context.Context, username string, credential *domain.VerifiableCredential) error
}

// IssuerStateReader exposes the issuer_state cached by an issuance flow.
type IssuerStateReader interface {
	GetIssuerState(ctx context.Context, username string) (string, error)
}

// Config holds the wallet URLs and the deferred polling policy.
type Config struct {
	// BaseURL is the public URL of this service.
	BaseURL string
	// WalletClientURL is the OAuth redirect_uri and pre-authorized landing page.
	WalletClientURL string
	Poll            PollPolicy
}

// Deps are the collaborators of the Orchestrator. Metrics and Notifier may be nil.
type Deps struct {
	Sessions     session.Store[Session]
	WritePolicy  session.Policy
	LegalPersons LegalPersonResolver
	Wallet       WalletProvider
	Credentials  CredentialSink
	Notifier     Notifier
	Client       *protocol.Client
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Orchestrator runs issuance flows. One session is kept per user.
type Orchestrator struct {
	cfg          Config
	sessions     *session.Manager[Session]
	legalPersons LegalPersonResolver
	wallet       WalletProvider
	credentials  CredentialSink
	notifier     Notifier
	client       *protocol.Client
	poller       *Poller
	metrics      *metrics.Metrics
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ IssuerStateReader = (*Orchestrator)(nil)

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	logger := deps.Logger.Named("oid4vci")
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:          cfg,
		sessions:     session.NewManager(deps.Sessions, deps.WritePolicy),
		legalPersons: deps.LegalPersons,
		wallet:       deps.Wallet,
		credentials:  deps.Credentials,
		notifier:     deps.Notifier,
		client:       deps.Client,
		poller:       NewPoller(cfg.Poll, deps.Metrics, logger),
		metrics:      deps.Metrics,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Close cancels background issuance and deferred polling and waits for them.
func (o *Orchestrator) Close() {
	o.cancel()
	o.poller.Close()
	o.wg.Wait()
}

// GetIssuerState returns the issuer_state of the user's current issuance session.
func (o *Orchestrator) GetIssuerState(ctx context.Context, username string) (string, error) {
	sess, err := o.loadSession(ctx, username)
	if err != nil {
		return "", err
	}
	if sess.IssuerState == "" {
		return "", fmt.Errorf("%w: issuance session has no issuer_state", protocol.ErrState)
	}
	return sess.IssuerState, nil
}

// AvailableSupportedCredentials lists the credentials an issuer can issue.
func (o *Orchestrator) AvailableSupportedCredentials(ctx context.Context, legalPersonDID string) ([]SupportedCredential, error) {
	lp, err := o.resolveByDID(ctx, legalPersonDID)
	if err != nil {
		return nil, err
	}

	metadata, err := o.fetchIssuerMetadata(ctx, lp.URL)
	if err != nil {
		return nil, err
	}

	supported := metadata.supported()
	out := make([]SupportedCredential, 0, len(supported))
	for _, cs := range supported {
		sc := SupportedCredential{ID: cs.ID}
		if len(cs.Display) > 0 {
			sc.DisplayName = cs.Display[0].Name
		}
		out = append(out, sc)
	}
	return out, nil
}

func (o *Orchestrator) loadSession(ctx context.Context, username string) (Session, error) {
	sess, err := o.sessions.Load(ctx, username)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: no issuance session for %s", protocol.ErrState, username)
	}
	return sess, err
}

func (o *Orchestrator) resolveByDID(ctx context.Context, did string) (*domain.LegalPerson, error) {
	lp, err := o.legalPersons.GetByDID(ctx, did)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no legal person with DID %s", protocol.ErrIssuerResolution, did)
	}
	return lp, err
}

func (o *Orchestrator) resolveByURL(ctx context.Context, issuerURL string) (*domain.LegalPerson, error) {
	lp, err := o.legalPersons.GetByURL(ctx, issuerURL)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: no legal person at %s", protocol.ErrIssuerResolution, issuerURL)
	}
	return lp, err
}

func (o *Orchestrator) fetchIssuerMetadata(ctx context.Context, issuerURL string) (*IssuerMetadata, error) {
	var metadata IssuerMetadata
	if err := o.client.GetJSON(ctx, wellKnown(issuerURL, "openid-credential-issuer"), &metadata); err != nil {
		return nil, fmt.Errorf("failed to fetch credential issuer metadata: %w", err)
	}
	return &metadata, nil
}

func (o *Orchestrator) fetchOpenIDConfiguration(ctx context.Context, serverURL string) (*OpenIDConfiguration, error) {
	var cfg OpenIDConfiguration
	if err := o.client.GetJSON(ctx, wellKnown(serverURL, "openid-configuration"), &cfg); err != nil {
		return nil, fmt.Errorf("failed to fetch authorization server configuration: %w", err)
	}
	return &cfg, nil
}

func wellKnown(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/.well-known/" + name
}
