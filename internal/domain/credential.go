package domain

import (
	"time"
)

// CredentialFormat represents the format of a credential
type CredentialFormat string

const (
	FormatJWTVC     CredentialFormat = "jwt_vc"
	FormatJWTVCJSON CredentialFormat = "jwt_vc_json"
	FormatLDPVC     CredentialFormat = "ldp_vc"
	FormatSDJWTVC   CredentialFormat = "vc+sd-jwt"
)

// PresentationFormat represents the format of a presentation
type PresentationFormat string

const (
	FormatJWTVP PresentationFormat = "jwt_vp"
)

// VerifiableCredential represents a stored verifiable credential together
// with the display hints resolved from the issuer metadata at issuance time.
type VerifiableCredential struct {
	ID                   int64            `json:"id" bson:"_id,omitempty"`
	HolderDID            string           `json:"holderDID" bson:"holder_did"`
	CredentialIdentifier string           `json:"credentialIdentifier" bson:"credential_identifier"`
	Credential           string           `json:"credential" bson:"credential"`
	Format               CredentialFormat `json:"format" bson:"format"`
	IssuerDID            string           `json:"issuerDID" bson:"issuer_did"`
	IssuerURL            string           `json:"issuerURL" bson:"issuer_url"`
	IssuerFriendlyName   string           `json:"issuerFriendlyName" bson:"issuer_friendly_name"`
	LogoURL              string           `json:"logoURL" bson:"logo_url"`
	BackgroundColor      string           `json:"backgroundColor" bson:"background_color"`
	IssuanceDate         time.Time        `json:"issuanceDate" bson:"issuance_date"`
	CreatedAt            time.Time        `json:"createdAt,omitempty" bson:"created_at"`
	UpdatedAt            time.Time        `json:"updatedAt,omitempty" bson:"updated_at"`
}

// VerifiablePresentation represents a stored verifiable presentation
type VerifiablePresentation struct {
	ID                                      int64              `json:"id" bson:"_id,omitempty"`
	HolderDID                               string             `json:"holderDID" bson:"holder_did"`
	PresentationIdentifier                  string             `json:"presentationIdentifier" bson:"presentation_identifier"`
	Presentation                            string             `json:"presentation" bson:"presentation"`
	PresentationSubmission                  string             `json:"presentationSubmission" bson:"presentation_submission"`
	IncludedVerifiableCredentialIdentifiers []string           `json:"includedVerifiableCredentialIdentifiers" bson:"included_vc_identifiers"`
	Audience                                string             `json:"audience" bson:"audience"`
	Format                                  PresentationFormat `json:"format" bson:"format"`
	IssuanceDate                            time.Time          `json:"issuanceDate" bson:"issuance_date"`
}
