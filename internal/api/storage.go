package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetAllCredentials lists the caller's stored credentials
func (h *Handlers) GetAllCredentials(c *gin.Context) {
	_, did, ok := caller(c)
	if !ok {
		return
	}

	credentials, err := h.services.Credential.GetAll(c.Request.Context(), did)
	if err != nil {
		h.respondError(c, "List credentials", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vc_list": credentials})
}

// GetCredential returns one stored credential
func (h *Handlers) GetCredential(c *gin.Context) {
	_, did, ok := caller(c)
	if !ok {
		return
	}

	credential, err := h.services.Credential.GetByIdentifier(c.Request.Context(), did, c.Param("credential_identifier"))
	if err != nil {
		h.respondError(c, "Get credential", err)
		return
	}
	c.JSON(http.StatusOK, credential)
}

// DeleteCredential removes a stored credential
func (h *Handlers) DeleteCredential(c *gin.Context) {
	_, did, ok := caller(c)
	if !ok {
		return
	}

	if err := h.services.Credential.Delete(c.Request.Context(), did, c.Param("credential_identifier")); err != nil {
		h.respondError(c, "Delete credential", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAllPresentations lists the presentations the caller has made
func (h *Handlers) GetAllPresentations(c *gin.Context) {
	_, did, ok := caller(c)
	if !ok {
		return
	}

	presentations, err := h.services.Presentation.GetAll(c.Request.Context(), did)
	if err != nil {
		h.respondError(c, "List presentations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vp_list": presentations})
}

// GetPresentation returns one presentation record
func (h *Handlers) GetPresentation(c *gin.Context) {
	_, did, ok := caller(c)
	if !ok {
		return
	}

	presentation, err := h.services.Presentation.GetByIdentifier(c.Request.Context(), did, c.Param("presentation_identifier"))
	if err != nil {
		h.respondError(c, "Get presentation", err)
		return
	}
	c.JSON(http.StatusOK, presentation)
}

// GetAllIssuers lists the registered credential issuers
func (h *Handlers) GetAllIssuers(c *gin.Context) {
	issuers, err := h.services.LegalPerson.GetAllIssuers(c.Request.Context())
	if err != nil {
		h.respondError(c, "List issuers", err)
		return
	}
	c.JSON(http.StatusOK, issuers)
}

// GetLegalPerson returns a registered issuer or verifier
func (h *Handlers) GetLegalPerson(c *gin.Context) {
	lp, err := h.services.LegalPerson.GetByDID(c.Request.Context(), c.Param("did"))
	if err != nil {
		h.respondError(c, "Get legal person", err)
		return
	}
	c.JSON(http.StatusOK, lp)
}
