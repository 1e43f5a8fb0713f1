package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

type authorizationRequestBody struct {
	AuthorizationRequest string `json:"authorization_request" binding:"required"`
}

type generateAuthorizationResponseBody struct {
	VerifiableCredentialsMap map[string]credentialIdentifiers `json:"verifiable_credentials_map" binding:"required"`
}

// credentialIdentifiers is the selection for one descriptor: a single
// credential identifier or a list of them.
type credentialIdentifiers []string

func (ids *credentialIdentifiers) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*ids = credentialIdentifiers{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return errors.New("verifiable_credentials_map values must be a credential identifier or a list of them")
	}
	*ids = list
	return nil
}

func (b generateAuthorizationResponseBody) selection() map[string][]string {
	out := make(map[string][]string, len(b.VerifiableCredentialsMap))
	for descriptorID, ids := range b.VerifiableCredentialsMap {
		out[descriptorID] = []string(ids)
	}
	return out
}

type signPresentationBody struct {
	VerifiableCredential []string `json:"verifiableCredential" binding:"required"`
	Audience             string   `json:"aud" binding:"required"`
	Nonce                string   `json:"nonce" binding:"required"`
}

// requiredRequestParams must all be present on an authorization request URL
var requiredRequestParams = []string{"client_id", "response_type", "scope", "redirect_uri"}

// validAuthorizationRequest checks the URL shape before any flow state is touched.
func validAuthorizationRequest(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return false
	}
	query := u.Query()
	for _, name := range requiredRequestParams {
		if query.Get(name) == "" {
			return false
		}
	}
	return true
}

func (h *Handlers) bindAuthorizationRequest(c *gin.Context) (string, bool) {
	var req authorizationRequestBody
	if !bindJSON(c, &req) {
		return "", false
	}
	if !validAuthorizationRequest(req.AuthorizationRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authorization_request body parameter must be valid URL."})
		return "", false
	}
	return req.AuthorizationRequest, true
}

// HandleIDTokenRequest answers a SIOP id_token request and returns where
// the verifier redirected.
func (h *Handlers) HandleIDTokenRequest(c *gin.Context) {
	username, did, ok := caller(c)
	if !ok {
		return
	}
	rawURL, ok := h.bindAuthorizationRequest(c)
	if !ok {
		return
	}

	redirectTo, err := h.presentation.ParseIDTokenRequest(c.Request.Context(), did, username, rawURL)
	if err != nil {
		h.respondError(c, "ID token request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_to": redirectTo})
}

// HandleAuthorizationRequest matches the caller's credentials against a
// verifier's presentation definition.
func (h *Handlers) HandleAuthorizationRequest(c *gin.Context) {
	username, did, ok := caller(c)
	if !ok {
		return
	}
	rawURL, ok := h.bindAuthorizationRequest(c)
	if !ok {
		return
	}

	conformance, verifier, err := h.presentation.ParseAuthorizationRequest(c.Request.Context(), did, username, rawURL)
	if err != nil {
		h.respondError(c, "Authorization request", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conformantCredentialsMap": conformance,
		"verifierDomainName":       verifier,
	})
}

// GenerateAuthorizationResponse presents the selected credentials to the verifier
func (h *Handlers) GenerateAuthorizationResponse(c *gin.Context) {
	username, did, ok := caller(c)
	if !ok {
		return
	}
	var req generateAuthorizationResponseBody
	if !bindJSON(c, &req) {
		return
	}

	redirectTo, err := h.presentation.GenerateAuthorizationResponse(c.Request.Context(), did, username, req.selection())
	if err != nil {
		h.respondError(c, "Authorization response", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_to": redirectTo})
}

// SignPresentation wraps raw credentials in a jwt_vp signed by the caller's key
func (h *Handlers) SignPresentation(c *gin.Context) {
	username, _, ok := caller(c)
	if !ok {
		return
	}
	var req signPresentationBody
	if !bindJSON(c, &req) {
		return
	}

	vp, err := h.presentation.SignPresentation(c.Request.Context(), username, req.Nonce, req.Audience, req.VerifiableCredential)
	if err != nil {
		h.respondError(c, "Sign presentation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vp_jwt": vp.Token})
}
