package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/service"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/storage"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
)

// statusFor maps a flow or storage error to an HTTP status. Only 4xx
// responses carry the error text; upstream failures are reported generically.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, protocol.ErrValidation),
		errors.Is(err, protocol.ErrMissingCode),
		errors.Is(err, protocol.ErrNoPresentationDefinition),
		errors.Is(err, storage.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, protocol.ErrIssuerResolution),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, protocol.ErrState),
		errors.Is(err, storage.ErrAlreadyExists),
		errors.Is(err, service.ErrUserExists),
		errors.Is(err, wallet.ErrNoKey):
		return http.StatusConflict, err.Error()
	case errors.Is(err, protocol.ErrNoConformantCredential),
		errors.Is(err, protocol.ErrSubmissionMismatch):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, protocol.ErrDelivery),
		errors.Is(err, protocol.ErrTokenExchange):
		return http.StatusBadGateway, "upstream request failed"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	} else {
		h.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}
