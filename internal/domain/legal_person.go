package domain

import "time"

// LegalPerson is a registered credential issuer or verifier.
// URL is the service base URL; for issuers it equals the credential_issuer identifier.
type LegalPerson struct {
	ID           int64     `json:"id" bson:"_id,omitempty"`
	DID          string    `json:"did" bson:"did"`
	URL          string    `json:"url" bson:"url"`
	FriendlyName string    `json:"friendlyName" bson:"friendly_name"`
	ClientID     string    `json:"clientId,omitempty" bson:"client_id,omitempty"`
	IsIssuer     bool      `json:"isIssuer" bson:"is_issuer"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}

// CreateLegalPersonRequest represents a request to register a legal person
type CreateLegalPersonRequest struct {
	DID          string `json:"did" binding:"required"`
	URL          string `json:"url" binding:"required"`
	FriendlyName string `json:"friendlyName" binding:"required"`
	ClientID     string `json:"clientId"`
	IsIssuer     bool   `json:"isIssuer"`
}
