package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteConfig carries the middleware and side handlers RegisterRoutes mounts.
// Admin routes are skipped when Admin is nil.
type RouteConfig struct {
	Auth       gin.HandlerFunc
	Admin      gin.HandlerFunc
	LoginLimit gin.HandlerFunc
	Metrics    http.Handler
}

// RegisterRoutes mounts the wallet API on router
func RegisterRoutes(router *gin.Engine, h *Handlers, rc RouteConfig) {
	router.GET("/status", h.Status)
	router.GET("/health", h.Health)
	router.GET("/jwks", h.JWKS)
	if rc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(rc.Metrics))
	}

	// =========================================================================
	// PUBLIC ROUTES
	// =========================================================================
	user := router.Group("/user")
	{
		user.POST("/register", h.RegisterUser)
		if rc.LoginLimit != nil {
			user.POST("/login", rc.LoginLimit, h.LoginUser)
		} else {
			user.POST("/login", h.LoginUser)
		}
	}

	// Auth is handled via appToken in the first websocket message
	router.GET("/ws/notifications", h.Notifications)

	// =========================================================================
	// PROTECTED ROUTES
	// =========================================================================
	protected := router.Group("/")
	protected.Use(rc.Auth)
	{
		session := protected.Group("/user/session")
		{
			session.GET("/account-info", h.GetAccountInfo)
		}
		protected.DELETE("/user", h.DeleteUser)

		issuance := protected.Group("/issuance")
		{
			issuance.GET("/supported_credentials", h.GetSupportedCredentials)
			issuance.POST("/generate/authorization/request", h.GenerateAuthorizationRequest)
			issuance.POST("/generate/authorization/request/with/offer", h.GenerateAuthorizationRequestWithOffer)
			issuance.POST("/handle/authorization/response", h.HandleAuthorizationResponse)
			issuance.POST("/request/credentials/with/pre_authorized", h.RequestCredentialsWithPreAuthorized)
		}

		presentation := protected.Group("/presentation")
		{
			presentation.POST("/handle/id_token/request", h.HandleIDTokenRequest)
			presentation.POST("/handle/authorization/request", h.HandleAuthorizationRequest)
			presentation.POST("/generate/authorization/response", h.GenerateAuthorizationResponse)
		}

		protected.POST("/signing/vp", h.SignPresentation)

		storage := protected.Group("/storage")
		{
			storage.GET("/vc", h.GetAllCredentials)
			storage.GET("/vc/:credential_identifier", h.GetCredential)
			storage.DELETE("/vc/:credential_identifier", h.DeleteCredential)
			storage.GET("/vp", h.GetAllPresentations)
			storage.GET("/vp/:presentation_identifier", h.GetPresentation)
		}

		protected.GET("/legal_person/issuers/all", h.GetAllIssuers)
		protected.GET("/legal_person/:did", h.GetLegalPerson)
	}

	// =========================================================================
	// ADMIN ROUTES
	// =========================================================================
	if rc.Admin != nil {
		admin := router.Group("/admin")
		admin.Use(rc.Admin)
		{
			admin.GET("/status", h.AdminStatus)
			admin.GET("/legal_person", h.ListLegalPersons)
			admin.GET("/legal_person/:did", h.GetLegalPerson)
			admin.POST("/legal_person", h.RegisterLegalPerson)
		}
	}
}
