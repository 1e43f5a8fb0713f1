package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-wallet-orchestrator/internal/api"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/backend"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/metrics"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/notify"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/oid4vci"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/oid4vp"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/protocol"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/service"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/session"
	"github.com/sirosfoundation/go-wallet-orchestrator/internal/wallet"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/logging"
	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/middleware"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Wallet Orchestrator",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize storage backend
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ping storage", zap.Error(err))
	}
	logger.Info("Storage backend initialized", zap.String("type", cfg.Storage.Type))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	issuanceSessions, presentationSessions, redisClient := setupSessionStores(cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	services := service.NewServices(store, cfg, logger)
	provider := wallet.NewProvider(store.Users(), logger)
	client := protocol.NewClient(cfg.Issuance.HTTPTimeout())

	var hub *notify.Hub
	var notifier oid4vci.Notifier
	if cfg.Notification.Enabled {
		hub = notify.NewHub(cfg.JWT.Secret, time.Duration(cfg.Notification.WriteTimeoutSeconds)*time.Second, logger)
		notifier = hub
	}

	issuance := oid4vci.New(oid4vci.Config{
		BaseURL:         cfg.Server.BaseURL,
		WalletClientURL: cfg.Server.WalletClientURL,
		Poll: oid4vci.PollPolicy{
			Delay:       cfg.Issuance.DeferredPollDelay(),
			MaxAttempts: cfg.Issuance.DeferredMaxAttempts,
			Backoff:     cfg.Issuance.DeferredBackoff,
		},
	}, oid4vci.Deps{
		Sessions:     issuanceSessions,
		WritePolicy:  session.Policy(cfg.SessionStore.WritePolicy),
		LegalPersons: store.LegalPersons(),
		Wallet:       provider,
		Credentials:  store.Credentials(),
		Notifier:     notifier,
		Client:       client,
		Metrics:      m,
		Logger:       logger,
	})

	presentation := oid4vp.New(oid4vp.Deps{
		Sessions:      presentationSessions,
		WritePolicy:   session.Policy(cfg.SessionStore.WritePolicy),
		Wallet:        provider,
		Credentials:   store.Credentials(),
		Presentations: store.Presentations(),
		IssuerState:   issuance,
		Parser:        protocol.NewRequestParser(client, logger),
		Poster:        protocol.NewDirectPoster(cfg.Issuance.HTTPTimeout(), logger),
		Metrics:       m,
		Logger:        logger,
	})

	var limiter *middleware.LoginRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewLoginRateLimiter(cfg.RateLimit, logger)
	}

	handlers := api.NewHandlers(api.Deps{
		Services:     services,
		Issuance:     issuance,
		Presentation: presentation,
		Keys:         provider,
		Storage:      store,
		Notifier:     hub,
		Limiter:      limiter,
		Logger:       logger,
	})

	router := setupRouter(cfg, handlers, services, limiter, registry, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", zap.String("address", cfg.Server.Address()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Background issuance and presentation records finish before storage closes
	issuance.Close()
	presentation.Close()
	if hub != nil {
		hub.Close()
	}

	logger.Info("Server exited")
}

// setupSessionStores returns the issuance and presentation session stores,
// plus the redis client backing them when one is configured.
func setupSessionStores(cfg *config.Config, logger *zap.Logger) (session.Store[oid4vci.Session], session.Store[oid4vp.Session], *redis.Client) {
	if cfg.SessionStore.Type != "redis" {
		logger.Info("Using in-memory session store",
			zap.String("write_policy", cfg.SessionStore.WritePolicy))
		return session.NewMemoryStore[oid4vci.Session](logger), session.NewMemoryStore[oid4vp.Session](logger), nil
	}

	client, err := session.NewRedisClient(&session.RedisConfig{
		Address:  cfg.SessionStore.Redis.Address,
		Password: cfg.SessionStore.Redis.Password,
		DB:       cfg.SessionStore.Redis.DB,
	})
	if err != nil {
		logger.Fatal("Failed to connect to redis session store", zap.Error(err))
	}

	ttl := time.Duration(cfg.SessionStore.DefaultTTLHours) * time.Hour
	prefix := cfg.SessionStore.Redis.KeyPrefix
	logger.Info("Using redis session store",
		zap.String("address", cfg.SessionStore.Redis.Address),
		zap.String("write_policy", cfg.SessionStore.WritePolicy))
	return session.NewRedisStore[oid4vci.Session](client, prefix+"vci:", ttl, logger),
		session.NewRedisStore[oid4vp.Session](client, prefix+"vp:", ttl, logger),
		client
}

func setupRouter(cfg *config.Config, handlers *api.Handlers, services *service.Services, limiter *middleware.LoginRateLimiter, registry *prometheus.Registry, logger *zap.Logger) *gin.Engine {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	rc := api.RouteConfig{
		Auth:    middleware.AuthMiddleware(services.User, logger),
		Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
	}
	if limiter != nil {
		rc.LoginLimit = middleware.RateLimitMiddleware(limiter, middleware.UsernameFromBody)
	}

	// Generate admin token if not provided
	adminToken := cfg.Server.AdminToken
	if adminToken == "" {
		var err error
		adminToken, err = middleware.GenerateAdminToken()
		if err != nil {
			logger.Error("Failed to generate admin token, admin API disabled", zap.Error(err))
		} else {
			logger.Info("Generated admin API token (set WALLET_SERVER_ADMIN_TOKEN to use a fixed token)",
				zap.String("token", adminToken))
		}
	}
	if adminToken != "" {
		rc.Admin = middleware.AdminAuthMiddleware(adminToken, logger)
	}

	api.RegisterRoutes(router, handlers, rc)
	return router
}
