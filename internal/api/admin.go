package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
)

// AdminStatus reports that the admin API is reachable
func (h *Handlers) AdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "wallet-orchestrator-admin"})
}

// RegisterLegalPerson registers an issuer or verifier
func (h *Handlers) RegisterLegalPerson(c *gin.Context) {
	var req domain.CreateLegalPersonRequest
	if !bindJSON(c, &req) {
		return
	}

	lp, err := h.services.LegalPerson.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Register legal person", err)
		return
	}
	c.JSON(http.StatusCreated, lp)
}

// ListLegalPersons lists registered legal persons; ?issuers=true keeps issuers only
func (h *Handlers) ListLegalPersons(c *gin.Context) {
	var (
		lps []*domain.LegalPerson
		err error
	)
	if c.Query("issuers") == "true" {
		lps, err = h.services.LegalPerson.GetAllIssuers(c.Request.Context())
	} else {
		lps, err = h.services.LegalPerson.GetAll(c.Request.Context())
	}
	if err != nil {
		h.respondError(c, "List legal persons", err)
		return
	}
	c.JSON(http.StatusOK, lps)
}
