package oid4vci

import (
	"encoding/json"
	"time"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

// GrantType is the OAuth grant used to obtain the access token.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantPreAuthorizedCode GrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// CredentialOffer is an issuer initiated offer.
type CredentialOffer struct {
	CredentialIssuer           string              `json:"credential_issuer"`
	Credentials                []OfferedCredential `json:"credentials,omitempty"`
	CredentialConfigurationIDs []string            `json:"credential_configuration_ids,omitempty"`
	Grants                     OfferGrants         `json:"grants"`
}

// OfferedCredential is an entry of an offer's credentials list. Offers may
// reference a credentials_supported id instead of spelling out the type.
type OfferedCredential struct {
	ID     string   `json:"id,omitempty"`
	Format string   `json:"format,omitempty"`
	Types  []string `json:"types,omitempty"`
}

func (c *OfferedCredential) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		c.ID = id
		return nil
	}

	type plain OfferedCredential
	return json.Unmarshal(data, (*plain)(c))
}

// OfferGrants lists the grants an offer permits.
type OfferGrants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

type AuthorizationCodeGrant struct {
	IssuerState string `json:"issuer_state,omitempty"`
}

type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string `json:"pre-authorized_code"`
	UserPINRequired   bool   `json:"user_pin_required"`
}

// IssuerMetadata is served at /.well-known/openid-credential-issuer.
type IssuerMetadata struct {
	CredentialIssuer                  string                         `json:"credential_issuer"`
	AuthorizationServer               string                         `json:"authorization_server,omitempty"`
	CredentialEndpoint                string                         `json:"credential_endpoint"`
	DeferredCredentialEndpoint        string                         `json:"deferred_credential_endpoint,omitempty"`
	CredentialsSupported              []CredentialSupported          `json:"credentials_supported,omitempty"`
	CredentialConfigurationsSupported map[string]CredentialSupported `json:"credential_configurations_supported,omitempty"`
}

// CredentialSupported describes one credential an issuer can issue.
type CredentialSupported struct {
	ID      string              `json:"id,omitempty"`
	Format  string              `json:"format"`
	Types   []string            `json:"types,omitempty"`
	Display []CredentialDisplay `json:"display,omitempty"`
}

type CredentialDisplay struct {
	Name            string `json:"name"`
	Locale          string `json:"locale,omitempty"`
	Logo            *Logo  `json:"logo,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
}

type Logo struct {
	URL     string `json:"url,omitempty"`
	AltText string `json:"alt_text,omitempty"`
}

// supported returns the credentials_supported list, falling back to the
// configuration map of newer issuers.
func (m *IssuerMetadata) supported() []CredentialSupported {
	if len(m.CredentialsSupported) > 0 || len(m.CredentialConfigurationsSupported) == 0 {
		return m.CredentialsSupported
	}
	out := make([]CredentialSupported, 0, len(m.CredentialConfigurationsSupported))
	for id, cs := range m.CredentialConfigurationsSupported {
		if cs.ID == "" {
			cs.ID = id
		}
		out = append(out, cs)
	}
	return out
}

// OpenIDConfiguration is the authorization server metadata.
type OpenIDConfiguration struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// AuthorizationDetail is an openid_credential authorization_details entry.
// It is also the credential request body apart from the proof.
type AuthorizationDetail struct {
	Type      string   `json:"type"`
	Format    string   `json:"format"`
	Types     []string `json:"types,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

// CredentialResponse is returned by the credential and deferred endpoints.
// A response with an AcceptanceToken carries no credential yet.
type CredentialResponse struct {
	Format          string          `json:"format,omitempty"`
	Credential      CredentialValue `json:"credential,omitempty"`
	AcceptanceToken string          `json:"acceptance_token,omitempty"`
	CNonce          string          `json:"c_nonce,omitempty"`
}

// CredentialValue holds an issued credential. JWT credentials arrive as
// strings, JSON-LD credentials as objects; both are kept as text.
type CredentialValue string

func (v *CredentialValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = CredentialValue(s)
		return nil
	}
	if string(data) == "null" {
		*v = ""
		return nil
	}
	*v = CredentialValue(data)
	return nil
}

// Session is the issuance state of one user. A new flow replaces it.
type Session struct {
	ID                   string                `json:"id"`
	Username             string                `json:"username"`
	HolderDID            string                `json:"holder_did"`
	LegalPerson          domain.LegalPerson    `json:"legal_person"`
	IssuerMetadata       IssuerMetadata        `json:"issuer_metadata"`
	OpenIDConfiguration  OpenIDConfiguration   `json:"openid_configuration"`
	IssuerState          string                `json:"issuer_state,omitempty"`
	AuthorizationDetails []AuthorizationDetail `json:"authorization_details"`
	CodeVerifier         string                `json:"code_verifier,omitempty"`
	Code                 string                `json:"code,omitempty"`
	GrantType            GrantType             `json:"grant_type"`
	TokenResponse        *TokenResponse        `json:"token_response,omitempty"`
	CredentialResponses  []CredentialResponse  `json:"credential_responses,omitempty"`
	UserPIN              string                `json:"user_pin,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
}

// SupportedCredential is a selectable credential of an issuer.
type SupportedCredential struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
