package oid4vp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/presexch"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

const persistTimeout = 10 * time.Second

// Conformance maps input descriptor ids to the identifiers of the
// holder's credentials that satisfy them.
type Conformance map[string][]string

// ParseIDTokenRequest answers an id_token authorization request by posting
// a self-issued id_token to the verifier. It returns the redirect the
// verifier answered with, which may be empty.
func (o *Orchestrator) ParseIDTokenRequest(ctx context.Context, did, username, rawURL string) (string, error) {
	req, err := o.parser.Validate(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if req.PresentationDefinition != nil {
		return "", &protocol.ValidationError{Field: "presentation_definition", Reason: "not expected in an id_token request"}
	}

	signer, err := o.signer(ctx, did, username)
	if err != nil {
		return "", err
	}

	issuerState, err := o.issuerState.GetIssuerState(ctx, username)
	if err != nil {
		o.logger.Debug("No issuer state for id_token response", zap.String("username", username))
		issuerState = ""
	}

	if err := o.storeSession(ctx, username, Session{
		Audience:    req.ClientID,
		Nonce:       req.Nonce,
		RedirectURI: req.RedirectURI,
		State:       req.State,
	}); err != nil {
		return "", err
	}

	idToken, err := signer.IDToken(req.Nonce, req.ClientID)
	if err != nil {
		return "", fmt.Errorf("failed to sign id_token: %w", err)
	}

	params := url.Values{"id_token": {idToken}}
	if req.State != "" {
		params.Set("state", req.State)
	}
	if issuerState != "" {
		params.Set("issuer_state", issuerState)
	}

	location := o.poster.Post(ctx, req.RedirectURI, params)
	o.metrics.IncDirectPost(protocol.ResponseTypeIDToken, location != "")
	return location, nil
}

// ParseAuthorizationRequest stores the verifier's request for the user and
// reports which held credentials satisfy each input descriptor, together
// with the host name of the verifier.
func (o *Orchestrator) ParseAuthorizationRequest(ctx context.Context, did, username, rawURL string) (Conformance, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", &protocol.ValidationError{Field: "authorization_request", Reason: err.Error()}
	}
	query := u.Query()

	redirectURI := query.Get("redirect_uri")
	verifier, err := url.Parse(redirectURI)
	if redirectURI == "" || err != nil {
		return nil, "", &protocol.ValidationError{Field: "redirect_uri", Reason: "missing or malformed"}
	}

	definition, err := o.definitionFromQuery(ctx, query)
	if err != nil {
		return nil, "", err
	}

	if err := o.storeSession(ctx, username, Session{
		PresentationDefinition: definition,
		Audience:               query.Get("client_id"),
		Nonce:                  query.Get("nonce"),
		RedirectURI:            redirectURI,
		State:                  query.Get("state"),
	}); err != nil {
		return nil, "", err
	}

	credentials, err := o.credentials.GetAllByHolder(ctx, did)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list credentials: %w", err)
	}

	conformance := make(Conformance)
	for _, descriptor := range definition.InputDescriptors {
		var matches []string
		for _, credential := range credentials {
			ok, err := o.wallet.MatchDescriptor(descriptor, credential.Credential)
			if err != nil {
				o.logger.Warn("Descriptor evaluation failed",
					zap.String("descriptor", descriptor.ID),
					zap.String("credential", credential.CredentialIdentifier),
					zap.Error(err))
				continue
			}
			if ok {
				matches = append(matches, credential.CredentialIdentifier)
			}
		}
		if len(matches) > 0 {
			conformance[descriptor.ID] = matches
		}
	}

	if len(conformance) == 0 {
		return nil, "", protocol.ErrNoConformantCredential
	}
	return conformance, verifier.Hostname(), nil
}

// definitionFromQuery prefers an inline definition over a referenced one.
func (o *Orchestrator) definitionFromQuery(ctx context.Context, query url.Values) (*presexch.PresentationDefinition, error) {
	if inline := query.Get("presentation_definition"); inline != "" {
		definition, err := presexch.ParseDefinition([]byte(inline))
		if err != nil {
			return nil, &protocol.ValidationError{Field: "presentation_definition", Reason: err.Error()}
		}
		return definition, nil
	}
	if uri := query.Get("presentation_definition_uri"); uri != "" {
		return o.parser.FetchDefinition(ctx, uri)
	}
	return nil, protocol.ErrNoPresentationDefinition
}

// GenerateAuthorizationResponse presents the selected credentials to the
// verifier of the user's current session and returns the verifier's
// redirect. The presentation is recorded once it has been delivered.
func (o *Orchestrator) GenerateAuthorizationResponse(ctx context.Context, did, username string, selection map[string][]string) (string, error) {
	sess, err := o.loadSession(ctx, username)
	if err != nil {
		return "", err
	}
	if sess.PresentationDefinition == nil {
		return "", fmt.Errorf("%w: no presentation definition in session", protocol.ErrState)
	}

	signer, err := o.signer(ctx, did, username)
	if err != nil {
		return "", err
	}

	held, err := o.credentials.GetAllByHolder(ctx, did)
	if err != nil {
		return "", fmt.Errorf("failed to list credentials: %w", err)
	}
	selected := selectCredentials(sess.PresentationDefinition, selection, held)

	presented := make([]presexch.PresentedCredential, 0, len(selected))
	for _, credential := range selected {
		doc, err := presexch.DecodeCredential(credential.Credential)
		if err != nil {
			return "", fmt.Errorf("%w: credential %s: %v", protocol.ErrSubmissionMismatch, credential.CredentialIdentifier, err)
		}
		presented = append(presented, presexch.PresentedCredential{Format: string(credential.Format), Document: doc})
	}

	submission, err := presexch.BuildSubmission(sess.PresentationDefinition, string(domain.FormatJWTVP), presented)
	if errors.Is(err, presexch.ErrSubmissionMismatch) {
		return "", fmt.Errorf("%w: %v", protocol.ErrSubmissionMismatch, err)
	}
	if err != nil {
		return "", err
	}
	submissionJSON, err := json.Marshal(submission)
	if err != nil {
		return "", err
	}

	vp, err := signer.SignPresentation(sess.Nonce, sess.Audience, lo.Map(selected, func(c *domain.VerifiableCredential, _ int) string {
		return c.Credential
	}))
	if err != nil {
		return "", fmt.Errorf("failed to sign presentation: %w", err)
	}

	params := url.Values{
		"vp_token":                {vp.Token},
		"presentation_submission": {string(submissionJSON)},
	}
	if sess.State != "" {
		params.Set("state", sess.State)
	}

	location := o.poster.Post(ctx, sess.RedirectURI, params)
	o.metrics.IncDirectPost(protocol.ResponseTypeVPToken, location != "")
	if location == "" {
		return "", fmt.Errorf("%w: verifier at %s returned no redirect", protocol.ErrDelivery, sess.RedirectURI)
	}

	included := lo.Map(selected, func(c *domain.VerifiableCredential, _ int) string {
		return c.CredentialIdentifier
	})
	record := &domain.VerifiablePresentation{
		HolderDID:                               did,
		PresentationIdentifier:                  vp.ID,
		Presentation:                            vp.Token,
		PresentationSubmission:                  string(submissionJSON),
		IncludedVerifiableCredentialIdentifiers: included,
		Audience:                                audienceHost(sess.Audience),
		Format:                                  domain.FormatJWTVP,
		IssuanceDate:                            vp.IssuanceDate,
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		if err := o.presentations.Create(persistCtx, record); err != nil {
			o.logger.Error("Failed to record presentation",
				zap.String("presentation", record.PresentationIdentifier),
				zap.Error(err))
		}
	}()

	return location, nil
}

// audienceHost is the host of a URL client_id; other client_ids, such as
// DIDs, are kept as they are.
func audienceHost(clientID string) string {
	if u, err := url.Parse(clientID); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return clientID
}

// selectCredentials resolves the selection in input descriptor order,
// skipping identifiers the holder does not have.
func selectCredentials(definition *presexch.PresentationDefinition, selection map[string][]string, held []*domain.VerifiableCredential) []*domain.VerifiableCredential {
	byID := lo.KeyBy(held, func(c *domain.VerifiableCredential) string {
		return c.CredentialIdentifier
	})

	var ids []string
	for _, descriptor := range definition.InputDescriptors {
		ids = append(ids, selection[descriptor.ID]...)
	}

	return lo.FilterMap(lo.Uniq(ids), func(id string, _ int) (*domain.VerifiableCredential, bool) {
		c, ok := byID[id]
		return c, ok
	})
}

// SignPresentation signs a presentation of raw credentials with the user's key.
func (o *Orchestrator) SignPresentation(ctx context.Context, username, nonce, audience string, credentials []string) (*wallet.Presentation, error) {
	signer, err := o.wallet.SignerFor(ctx, username)
	if err != nil {
		return nil, err
	}
	return signer.SignPresentation(nonce, audience, credentials)
}
