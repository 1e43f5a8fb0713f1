package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type generateAuthorizationRequestBody struct {
	LegalPersonDID string `json:"legal_person_did" binding:"required"`
}

type generateAuthorizationRequestWithOfferBody struct {
	CredentialOfferURL string `json:"credential_offer_url" binding:"required"`
}

type handleAuthorizationResponseBody struct {
	AuthorizationResponseURL string `json:"authorization_response_url" binding:"required"`
}

type preAuthorizedBody struct {
	UserPIN string `json:"user_pin"`
}

// GetSupportedCredentials lists the credential types a registered issuer offers
func (h *Handlers) GetSupportedCredentials(c *gin.Context) {
	did := c.Query("legal_person_did")
	if did == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "legal_person_did query parameter required"})
		return
	}

	supported, err := h.issuance.AvailableSupportedCredentials(c.Request.Context(), did)
	if err != nil {
		h.respondError(c, "Supported credentials", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"supported_credentials": supported})
}

// GenerateAuthorizationRequest starts issuance with a registered issuer
func (h *Handlers) GenerateAuthorizationRequest(c *gin.Context) {
	username, _, ok := caller(c)
	if !ok {
		return
	}
	var req generateAuthorizationRequestBody
	if !bindJSON(c, &req) {
		return
	}

	redirectTo, err := h.issuance.GenerateAuthorizationRequestURL(c.Request.Context(), username, "", req.LegalPersonDID)
	if err != nil {
		h.respondError(c, "Generate authorization request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_to": redirectTo})
}

// GenerateAuthorizationRequestWithOffer starts issuance from a credential offer
func (h *Handlers) GenerateAuthorizationRequestWithOffer(c *gin.Context) {
	username, _, ok := caller(c)
	if !ok {
		return
	}
	var req generateAuthorizationRequestWithOfferBody
	if !bindJSON(c, &req) {
		return
	}

	redirectTo, err := h.issuance.GenerateAuthorizationRequestURL(c.Request.Context(), username, req.CredentialOfferURL, "")
	if err != nil {
		h.respondError(c, "Generate authorization request with offer", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_to": redirectTo})
}

// HandleAuthorizationResponse starts the token and credential exchange.
// Credentials are stored in the background.
func (h *Handlers) HandleAuthorizationResponse(c *gin.Context) {
	username, _, ok := caller(c)
	if !ok {
		return
	}
	var req handleAuthorizationResponseBody
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.issuance.HandleAuthorizationResponse(c.Request.Context(), username, req.AuthorizationResponseURL); err != nil {
		h.respondError(c, "Handle authorization response", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// RequestCredentialsWithPreAuthorized starts a pre-authorized code exchange
func (h *Handlers) RequestCredentialsWithPreAuthorized(c *gin.Context) {
	username, _, ok := caller(c)
	if !ok {
		return
	}
	var req preAuthorizedBody
	if !bindJSON(c, &req) {
		return
	}

	if _, err := h.issuance.RequestCredentialsWithPreAuthorizedGrant(c.Request.Context(), username, req.UserPIN); err != nil {
		h.respondError(c, "Pre-authorized credential request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
