package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sirosfoundation/go-wallet-orchestrator/pkg/config"
)

const (
	anonymousIdentifier = "_anonymous"
	maxPeekBytes        = 64 << 10
	limiterIdleTimeout  = 30 * time.Minute
)

// LoginRateLimiter throttles authentication attempts per username. Once a
// username spends its budget it is locked out for the configured period.
type LoginRateLimiter struct {
	config config.AuthRateLimitConfig
	logger *zap.Logger

	mu              sync.Mutex
	limiters        map[string]*loginLimiter
	cleanupInterval time.Duration
	lastCleanup     time.Time
}

type loginLimiter struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	lockoutEnd time.Time
}

// NewLoginRateLimiter creates a new rate limiter for auth endpoints
func NewLoginRateLimiter(cfg config.AuthRateLimitConfig, logger *zap.Logger) *LoginRateLimiter {
	cfg.SetDefaults()
	return &LoginRateLimiter{
		config:          cfg,
		logger:          logger.Named("auth-ratelimit"),
		limiters:        make(map[string]*loginLimiter),
		cleanupInterval: 10 * time.Minute,
		lastCleanup:     time.Now(),
	}
}

// getLimiter must be called with r.mu held.
func (r *LoginRateLimiter) getLimiter(identifier string, now time.Time) *loginLimiter {
	if now.Sub(r.lastCleanup) > r.cleanupInterval {
		for key, l := range r.limiters {
			if now.Sub(l.lastSeen) > limiterIdleTimeout && now.After(l.lockoutEnd) {
				delete(r.limiters, key)
			}
		}
		r.lastCleanup = now
	}

	l, ok := r.limiters[identifier]
	if !ok {
		// MaxAttempts per WindowSeconds
		limit := rate.Limit(float64(r.config.MaxAttempts) / float64(r.config.WindowSeconds))
		l = &loginLimiter{limiter: rate.NewLimiter(limit, r.config.MaxAttempts)}
		r.limiters[identifier] = l
	}
	l.lastSeen = now
	return l
}

// Allow reports whether another attempt is allowed for identifier
func (r *LoginRateLimiter) Allow(identifier string) bool {
	if !r.config.Enabled {
		return true
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	l := r.getLimiter(identifier, now)
	if now.Before(l.lockoutEnd) {
		return false
	}
	if l.limiter.AllowN(now, 1) {
		return true
	}

	lockout := time.Duration(r.config.LockoutSeconds) * time.Second
	l.lockoutEnd = now.Add(lockout)
	r.logger.Warn("Auth rate limit exceeded, applying lockout",
		zap.String("identifier", identifier),
		zap.Duration("lockout_duration", lockout))
	return false
}

// RecordFailure makes a failed attempt cost two more tokens
func (r *LoginRateLimiter) RecordFailure(identifier string) {
	if !r.config.Enabled {
		return
	}

	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getLimiter(identifier, now).limiter.AllowN(now, 2)
}

// UsernameFromBody reads the "username" field of a JSON body and restores
// the body for the next handler.
func UsernameFromBody(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPeekBytes))
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(data))

	var body struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	return body.Username
}

// RateLimitMiddleware rejects requests whose identifier is over its budget.
// Requests without an identifier share an anonymous budget.
func RateLimitMiddleware(rl *LoginRateLimiter, extractID func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		identifier := extractID(c)
		if identifier == "" {
			identifier = anonymousIdentifier
		}
		c.Set("rate_limit_identifier", identifier)

		if !rl.Allow(identifier) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many authentication attempts. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
