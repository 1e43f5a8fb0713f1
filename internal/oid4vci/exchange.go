package oid4vci

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/metrics"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/session"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

// maxConcurrentCredentialRequests bounds the parallel calls to one credential endpoint.
const maxConcurrentCredentialRequests = 8

var errSessionReplaced = fmt.Errorf("%w: issuance session was replaced by a newer flow", protocol.ErrState)

type proofObject struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

type credentialRequest struct {
	Proof proofObject `json:"proof"`
	AuthorizationDetail
}

// HandleAuthorizationResponse takes the code from the issuer's redirect and
// starts token exchange and credential retrieval in the background.
func (o *Orchestrator) HandleAuthorizationResponse(ctx context.Context, username, authorizationResponseURL string) (*Task, error) {
	u, err := url.Parse(authorizationResponseURL)
	if err != nil {
		return nil, &protocol.ValidationError{Field: "authorization_response_url", Reason: err.Error()}
	}
	code := u.Query().Get("code")
	if code == "" {
		return nil, protocol.ErrMissingCode
	}

	_, err = o.updateSession(ctx, username, func(sess *Session) error {
		if sess.GrantType != GrantAuthorizationCode {
			return fmt.Errorf("%w: session does not expect an authorization code", protocol.ErrState)
		}
		sess.Code = code
		return nil
	})
	if err != nil {
		return nil, err
	}

	return o.startIssuance(username), nil
}

// RequestCredentialsWithPreAuthorizedGrant attaches the user's PIN to a
// pre-authorized session and starts credential retrieval in the background.
func (o *Orchestrator) RequestCredentialsWithPreAuthorizedGrant(ctx context.Context, username, userPIN string) (*Task, error) {
	_, err := o.updateSession(ctx, username, func(sess *Session) error {
		if sess.GrantType != GrantPreAuthorizedCode {
			return fmt.Errorf("%w: session is not pre-authorized", protocol.ErrState)
		}
		sess.UserPIN = userPIN
		return nil
	})
	if err != nil {
		return nil, err
	}

	return o.startIssuance(username), nil
}

func (o *Orchestrator) updateSession(ctx context.Context, username string, fn func(*Session) error) (Session, error) {
	sess, err := o.sessions.Update(ctx, username, fn)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, fmt.Errorf("%w: no issuance session for %s", protocol.ErrState, username)
	}
	return sess, err
}

func (o *Orchestrator) startIssuance(username string) *Task {
	task := newTask()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.issue(o.ctx, username)
		if err != nil {
			o.logger.Error("Credential issuance failed", zap.String("username", username), zap.Error(err))
		}
		task.finish(err)
	}()

	return task
}

// issue exchanges the session's grant for a token, requests every
// authorized credential and hands the results to storage or deferred polling.
func (o *Orchestrator) issue(ctx context.Context, username string) error {
	sess, err := o.loadSession(ctx, username)
	if err != nil {
		return err
	}

	signer, err := o.wallet.SignerFor(ctx, username)
	if err != nil {
		return err
	}

	token, err := o.requestToken(ctx, &sess)
	if err != nil {
		return err
	}
	sess, err = o.updateSession(ctx, username, func(s *Session) error {
		if s.ID != sess.ID {
			return errSessionReplaced
		}
		s.TokenResponse = token
		return nil
	})
	if err != nil {
		return err
	}

	responses, err := o.requestCredentials(ctx, &sess, signer, token)
	if err != nil {
		return err
	}
	sess, err = o.updateSession(ctx, username, func(s *Session) error {
		if s.ID != sess.ID {
			return errSessionReplaced
		}
		s.CredentialResponses = responses
		return nil
	})
	if err != nil {
		return err
	}

	var storeErrs []error
	for i := range responses {
		resp := responses[i]
		if resp.AcceptanceToken != "" {
			o.scheduleDeferred(sess, resp.AcceptanceToken)
			continue
		}
		if err := o.storeCredential(ctx, sess, &resp); err != nil {
			storeErrs = append(storeErrs, err)
		}
	}
	return errors.Join(storeErrs...)
}

func (o *Orchestrator) requestToken(ctx context.Context, sess *Session) (*TokenResponse, error) {
	form := url.Values{}
	switch sess.GrantType {
	case GrantAuthorizationCode:
		form.Set("grant_type", string(GrantAuthorizationCode))
		form.Set("code", sess.Code)
		form.Set("redirect_uri", o.cfg.WalletClientURL)
		form.Set("code_verifier", sess.CodeVerifier)
		form.Set("client_id", sess.HolderDID)
	case GrantPreAuthorizedCode:
		form.Set("grant_type", string(GrantPreAuthorizedCode))
		form.Set("pre-authorized_code", sess.Code)
		form.Set("user_pin", sess.UserPIN)
	default:
		return nil, fmt.Errorf("%w: unknown grant type %q", protocol.ErrState, sess.GrantType)
	}

	var token TokenResponse
	if err := o.client.PostForm(ctx, sess.OpenIDConfiguration.TokenEndpoint, form, &token); err != nil {
		fields := []zap.Field{zap.String("username", sess.Username), zap.Error(err)}
		var statusErr *protocol.StatusError
		if errors.As(err, &statusErr) {
			fields = append(fields, zap.String("body", statusErr.Body))
		}
		o.logger.Warn("Token request failed", fields...)
		return nil, fmt.Errorf("%w: %v", protocol.ErrTokenExchange, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", protocol.ErrTokenExchange)
	}
	return &token, nil
}

// requestCredentials sends one credential request per authorization detail.
// Failed requests are logged and left out; the others still count.
func (o *Orchestrator) requestCredentials(ctx context.Context, sess *Session, signer *wallet.Signer, token *TokenResponse) ([]CredentialResponse, error) {
	proof, err := signer.ProofJWT(token.CNonce, sess.IssuerMetadata.CredentialIssuer)
	if err != nil {
		return nil, err
	}

	endpoint := sess.IssuerMetadata.CredentialEndpoint
	results := make([]*CredentialResponse, len(sess.AuthorizationDetails))

	var g errgroup.Group
	g.SetLimit(maxConcurrentCredentialRequests)
	for i, detail := range sess.AuthorizationDetails {
		i, detail := i, detail
		g.Go(func() error {
			body := credentialRequest{
				Proof:               proofObject{ProofType: "jwt", JWT: proof},
				AuthorizationDetail: detail,
			}

			var resp CredentialResponse
			if err := o.client.PostJSON(ctx, endpoint, token.AccessToken, body, &resp); err != nil {
				o.metrics.IncCredentialRequest(metrics.OutcomeFailure)
				o.logger.Warn("Credential request failed",
					zap.String("username", sess.Username),
					zap.Strings("types", detail.Types),
					zap.Error(err))
				return nil
			}

			if resp.AcceptanceToken != "" {
				o.metrics.IncCredentialRequest(metrics.OutcomeDeferred)
			} else {
				o.metrics.IncCredentialRequest(metrics.OutcomeSuccess)
			}
			results[i] = &resp
			return nil
		})
	}
	_ = g.Wait()

	responses := make([]CredentialResponse, 0, len(results))
	for _, r := range results {
		if r != nil {
			responses = append(responses, *r)
		}
	}
	if len(responses) == 0 && len(results) > 0 {
		return nil, fmt.Errorf("all %d credential requests failed", len(results))
	}
	return responses, nil
}

// scheduleDeferred polls the deferred endpoint for token. The session
// snapshot supplies the issuer and holder when the credential arrives.
func (o *Orchestrator) scheduleDeferred(sess Session, token string) {
	endpoint := sess.IssuerMetadata.DeferredCredentialEndpoint
	if endpoint == "" {
		o.logger.Error("Issuer deferred a credential but has no deferred endpoint",
			zap.String("issuer", sess.LegalPerson.URL))
		return
	}

	fetch := func(ctx context.Context) (*CredentialResponse, error) {
		var resp CredentialResponse
		if err := o.client.PostJSON(ctx, endpoint, token, struct{}{}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	onIssued := func(ctx context.Context, resp *CredentialResponse) {
		if err := o.storeCredential(ctx, sess, resp); err != nil {
			o.logger.Error("Failed to store deferred credential", zap.String("username", sess.Username), zap.Error(err))
		}
	}

	if !o.poller.Schedule(sess.ID, token, fetch, onIssued) {
		o.logger.Debug("Deferred credential already being polled", zap.String("username", sess.Username))
	}
}
