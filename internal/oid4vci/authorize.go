package oid4vci

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
)

// CodeChallengeMethod is the only PKCE method used.
const CodeChallengeMethod = "S256"

const authorizationDetailType = "openid_credential"

// NewCodeVerifier returns a random PKCE code verifier.
func NewCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CodeChallenge derives the S256 challenge of a verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

type clientMetadata struct {
	JWKSURI                string                         `json:"jwks_uri"`
	VPFormatsSupported     map[string]map[string][]string `json:"vp_formats_supported"`
	ResponseTypesSupported []string                       `json:"response_types_supported"`
}

// GenerateAuthorizationRequestURL starts an issuance flow for username with
// the issuer named by legalPersonDID or by a credential offer URL. It returns
// the URL the user agent is sent to: the issuer's authorization endpoint, or
// the wallet's pre-authorized landing page.
func (o *Orchestrator) GenerateAuthorizationRequestURL(ctx context.Context, username, credentialOfferURL, legalPersonDID string) (string, error) {
	var (
		lp    *domain.LegalPerson
		offer *CredentialOffer
		err   error
	)

	switch {
	case legalPersonDID != "":
		lp, err = o.resolveByDID(ctx, legalPersonDID)
	case credentialOfferURL != "":
		offer, err = o.parseCredentialOffer(ctx, credentialOfferURL)
		if err != nil {
			return "", err
		}
		if offer.CredentialIssuer == "" {
			return "", fmt.Errorf("%w: credential offer has no credential_issuer", protocol.ErrIssuerResolution)
		}
		lp, err = o.resolveByURL(ctx, offer.CredentialIssuer)
	default:
		return "", fmt.Errorf("%w: neither legal person nor credential offer given", protocol.ErrIssuerResolution)
	}
	if err != nil {
		return "", err
	}

	signer, err := o.wallet.SignerFor(ctx, username)
	if err != nil {
		return "", err
	}

	metadata, err := o.fetchIssuerMetadata(ctx, lp.URL)
	if err != nil {
		return "", err
	}
	if metadata.CredentialIssuer == "" {
		metadata.CredentialIssuer = lp.URL
	}

	authServer := metadata.AuthorizationServer
	if authServer == "" {
		authServer = metadata.CredentialIssuer
	}
	oauthConfig, err := o.fetchOpenIDConfiguration(ctx, authServer)
	if err != nil {
		return "", err
	}

	sess := Session{
		ID:                   uuid.NewString(),
		Username:             username,
		HolderDID:            signer.DID(),
		LegalPerson:          *lp,
		IssuerMetadata:       *metadata,
		OpenIDConfiguration:  *oauthConfig,
		AuthorizationDetails: o.authorizationDetails(offer, metadata),
		CreatedAt:            time.Now().UTC(),
	}
	if offer != nil && offer.Grants.AuthorizationCode != nil {
		sess.IssuerState = offer.Grants.AuthorizationCode.IssuerState
	}

	if offer != nil && offer.Grants.PreAuthorizedCode != nil {
		grant := offer.Grants.PreAuthorizedCode
		sess.GrantType = GrantPreAuthorizedCode
		sess.Code = grant.PreAuthorizedCode

		if err := o.replaceSession(ctx, sess); err != nil {
			return "", err
		}
		o.metrics.IncIssuanceFlow(string(GrantPreAuthorizedCode))

		sep := "?"
		if strings.Contains(o.cfg.WalletClientURL, "?") {
			sep = "&"
		}
		return o.cfg.WalletClientURL + sep + "preauth=true&ask_for_pin=" + strconv.FormatBool(grant.UserPINRequired), nil
	}

	verifier, err := NewCodeVerifier()
	if err != nil {
		return "", err
	}
	sess.GrantType = GrantAuthorizationCode
	sess.CodeVerifier = verifier

	authURL, err := o.buildAuthorizationURL(oauthConfig.AuthorizationEndpoint, signer.DID(), sess.AuthorizationDetails, verifier, sess.IssuerState)
	if err != nil {
		return "", err
	}

	if err := o.replaceSession(ctx, sess); err != nil {
		return "", err
	}
	o.metrics.IncIssuanceFlow(string(GrantAuthorizationCode))

	o.logger.Info("Generated authorization request",
		zap.String("username", username),
		zap.String("issuer", lp.URL))
	return authURL, nil
}

func (o *Orchestrator) buildAuthorizationURL(endpoint, clientID string, details []AuthorizationDetail, verifier, issuerState string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid authorization endpoint %q", endpoint)
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	metadataJSON, err := json.Marshal(clientMetadata{
		JWKSURI:                strings.TrimSuffix(o.cfg.BaseURL, "/") + "/jwks",
		VPFormatsSupported:     map[string]map[string][]string{"jwt_vp": {"alg": {"ES256"}}},
		ResponseTypesSupported: []string{"vp_token", "id_token"},
	})
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("scope", "openid")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", o.cfg.WalletClientURL)
	q.Set("authorization_details", string(detailsJSON))
	q.Set("code_challenge", CodeChallenge(verifier))
	q.Set("code_challenge_method", CodeChallengeMethod)
	q.Set("response_type", "code")
	if issuerState != "" {
		q.Set("issuer_state", issuerState)
	}
	q.Set("client_metadata", string(metadataJSON))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// replaceSession stores sess as the user's session and stops the deferred
// polling of the session it replaces.
func (o *Orchestrator) replaceSession(ctx context.Context, sess Session) error {
	previous, err := o.sessions.Replace(ctx, sess.Username, sess)
	if err != nil {
		return fmt.Errorf("failed to store issuance session: %w", err)
	}
	if previous != nil {
		if n := o.poller.CancelOwner(previous.ID); n > 0 {
			o.logger.Info("Cancelled deferred polling of replaced session",
				zap.String("username", sess.Username),
				zap.Int("tasks", n))
		}
	}
	return nil
}

// parseCredentialOffer reads the offer carried by value or by reference in
// the query of offerURL.
func (o *Orchestrator) parseCredentialOffer(ctx context.Context, offerURL string) (*CredentialOffer, error) {
	u, err := url.Parse(offerURL)
	if err != nil {
		return nil, &protocol.ValidationError{Field: "credential_offer_url", Reason: err.Error()}
	}
	query := u.Query()

	var offer CredentialOffer
	if uri := query.Get("credential_offer_uri"); uri != "" {
		if err := o.client.GetJSON(ctx, uri, &offer); err != nil {
			return nil, fmt.Errorf("%w: failed to fetch credential offer: %v", protocol.ErrIssuerResolution, err)
		}
		return &offer, nil
	}

	raw := query.Get("credential_offer")
	if raw == "" {
		return nil, &protocol.ValidationError{Field: "credential_offer_url", Reason: "no credential_offer or credential_offer_uri"}
	}
	if err := json.Unmarshal([]byte(raw), &offer); err != nil {
		return nil, &protocol.ValidationError{Field: "credential_offer", Reason: err.Error()}
	}
	return &offer, nil
}

// authorizationDetails requests the offered credentials, or everything the
// issuer supports when there is no offer.
func (o *Orchestrator) authorizationDetails(offer *CredentialOffer, metadata *IssuerMetadata) []AuthorizationDetail {
	supported := metadata.supported()
	byID := lo.KeyBy(lo.Filter(supported, func(cs CredentialSupported, _ int) bool { return cs.ID != "" }),
		func(cs CredentialSupported) string { return cs.ID })

	var requested []OfferedCredential
	switch {
	case offer == nil:
	case len(offer.Credentials) > 0:
		requested = offer.Credentials
	case len(offer.CredentialConfigurationIDs) > 0:
		requested = lo.Map(offer.CredentialConfigurationIDs, func(id string, _ int) OfferedCredential {
			return OfferedCredential{ID: id}
		})
	}
	if offer == nil || len(requested) == 0 {
		requested = lo.Map(supported, func(cs CredentialSupported, _ int) OfferedCredential {
			return OfferedCredential{Format: cs.Format, Types: cs.Types}
		})
	}

	details := make([]AuthorizationDetail, 0, len(requested))
	for _, c := range requested {
		if c.Format == "" && c.ID != "" {
			cs, ok := byID[c.ID]
			if !ok {
				o.logger.Warn("Offered credential is not supported by issuer", zap.String("id", c.ID))
				continue
			}
			c.Format, c.Types = cs.Format, cs.Types
		}
		details = append(details, AuthorizationDetail{
			Type:      authorizationDetailType,
			Format:    c.Format,
			Types:     c.Types,
			Locations: []string{metadata.CredentialIssuer},
		})
	}
	return details
}
