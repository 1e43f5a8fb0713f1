package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/domain"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/notify"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/oid4vci"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/oid4vp"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/service"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/middleware"
)

// IssuanceFlows drives OpenID4VCI on behalf of users.
type IssuanceFlows interface {
	GenerateAuthorizationRequestURL(ctx context.Context, username, credentialOfferURL, legalPersonDID string) (string, error)
	HandleAuthorizationResponse(ctx context.Context, username, authorizationResponseURL string) (*oid4vci.Task, error)
	RequestCredentialsWithPreAuthorizedGrant(ctx context.Context, username, userPIN string) (*oid4vci.Task, error)
	AvailableSupportedCredentials(ctx context.Context, legalPersonDID string) ([]oid4vci.SupportedCredential, error)
}

// PresentationFlows drives OpenID4VP on behalf of users.
type PresentationFlows interface {
	ParseIDTokenRequest(ctx context.Context, did, username, rawURL string) (string, error)
	ParseAuthorizationRequest(ctx context.Context, did, username, rawURL string) (oid4vp.Conformance, string, error)
	GenerateAuthorizationResponse(ctx context.Context, did, username string, selection map[string][]string) (string, error)
	SignPresentation(ctx context.Context, username, nonce, audience string, credentials []string) (*wallet.Presentation, error)
}

// KeySet publishes the public keys of all wallet users.
type KeySet interface {
	JWKS(ctx context.Context) (jwk.Set, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handlers. Notifier and Limiter may be nil.
type Deps struct {
	Services     *service.Services
	Issuance     IssuanceFlows
	Presentation PresentationFlows
	Keys         KeySet
	Storage      Pinger
	Notifier     *notify.Hub
	Limiter      *middleware.LoginRateLimiter
	Logger       *zap.Logger
}

// Handlers aggregates all HTTP handlers
type Handlers struct {
	services     *service.Services
	issuance     IssuanceFlows
	presentation PresentationFlows
	keys         KeySet
	storage      Pinger
	notifier     *notify.Hub
	limiter      *middleware.LoginRateLimiter
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		services:     deps.Services,
		issuance:     deps.Issuance,
		presentation: deps.Presentation,
		keys:         deps.Keys,
		storage:      deps.Storage,
		notifier:     deps.Notifier,
		limiter:      deps.Limiter,
		logger:       deps.Logger.Named("handlers"),
	}
}

// caller returns the authenticated username and DID
func caller(c *gin.Context) (string, string, bool) {
	username := c.GetString(middleware.ContextUsername)
	did := c.GetString(middleware.ContextDID)
	if username == "" || did == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	return username, did, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// Status handles the /status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:       "ok",
		Service:      "wallet-orchestrator",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
	})
}

// Health reports whether storage is reachable
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// JWKS publishes the wallet users' public keys
func (h *Handlers) JWKS(c *gin.Context) {
	set, err := h.keys.JWKS(c.Request.Context())
	if err != nil {
		h.respondError(c, "JWKS", err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func loginResponse(user *domain.User, token string) domain.LoginResponse {
	resp := domain.LoginResponse{Token: token, UserID: user.UUID.String(), DID: user.DID}
	if user.DisplayName != nil {
		resp.DisplayName = *user.DisplayName
	}
	return resp
}

// RegisterUser creates an account and its wallet key
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req domain.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.services.User.Register(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Register", err)
		return
	}
	c.JSON(http.StatusOK, loginResponse(user, token))
}

// LoginUser exchanges username and password for an app token
func (h *Handlers) LoginUser(c *gin.Context) {
	var req domain.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, token, err := h.services.User.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		if h.limiter != nil {
			h.limiter.RecordFailure(req.Username)
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.respondError(c, "Login", err)
		return
	}
	c.JSON(http.StatusOK, loginResponse(user, token))
}

// GetAccountInfo returns the current user's account
func (h *Handlers) GetAccountInfo(c *gin.Context) {
	user, err := h.services.User.GetUserByID(c.Request.Context(), domain.UserIDFromString(c.GetString(middleware.ContextUserID)))
	if err != nil {
		h.respondError(c, "Account info", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uuid":        user.UUID.String(),
		"username":    user.Username,
		"displayName": user.DisplayName,
		"did":         user.DID,
	})
}

// DeleteUser deletes the current user and all associated data
func (h *Handlers) DeleteUser(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.services.User.DeleteUser(c.Request.Context(), domain.UserIDFromString(userID)); err != nil {
		h.respondError(c, "Delete user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "DELETED"})
}

// Notifications upgrades to the push notification websocket.
// Clients authenticate with their app token in the first message.
func (h *Handlers) Notifications(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Notifications disabled"})
		return
	}
	h.notifier.HandleConnection(c.Writer, c.Request)
}
