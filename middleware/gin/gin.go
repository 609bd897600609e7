// Package gin provides Gin middleware for admission enforcement
package gin

import (
	"net/http"
	"strconv"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// UserIDExtractor extracts the user ID from a Gin context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *gongin.Context) string

// SessionIDExtractor extracts the session ID from a Gin context
// Return empty string if no session is available
type SessionIDExtractor func(c *gongin.Context) string

// ActionExtractor extracts the action type from a Gin context
// For example: "conversation", "image_generation"
type ActionExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Engine is the admission engine instance (required)
	Engine *admit.Engine

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// GetSessionID extracts session ID from context (optional)
	// If nil, defaults to the X-Session-ID header
	GetSessionID SessionIDExtractor

	// GetAction extracts the action type from context (optional)
	// If nil, every request is gated as a conversation
	GetAction ActionExtractor

	// RetryAfterSeconds is advertised in the Retry-After header on
	// rate-limited responses. Default: one token's accrual interval at
	// the free-tier defaults.
	RetryAfterSeconds int

	// OnRateLimitExceeded is called when the token bucket is empty
	// If nil, returns 429 JSON with a Retry-After header
	OnRateLimitExceeded func(c *gongin.Context, result *admit.ActionResult)

	// OnInsufficientCredits is called when the credit balance cannot
	// cover the action. If nil, returns 402 JSON
	OnInsufficientCredits func(c *gongin.Context, result *admit.ActionResult)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that admits or rejects requests
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Engine == nil {
		panic("goadmit/gin: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("goadmit/gin: Config.GetUserID is required")
	}
	if cfg.GetSessionID == nil {
		cfg.GetSessionID = func(c *gongin.Context) string {
			return c.GetHeader("X-Session-ID")
		}
	}
	if cfg.GetAction == nil {
		cfg.GetAction = func(*gongin.Context) string { return admit.ActionConversation }
	}
	if cfg.RetryAfterSeconds == 0 {
		cfg.RetryAfterSeconds = admit.DefaultUserWindowSeconds / admit.DefaultUserMaxRequests
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					gongin.H{"error": "unauthorized"})
			}
			return
		}

		result, err := cfg.Engine.ExecuteAction(c.Request.Context(), userID,
			cfg.GetSessionID(c), cfg.GetAction(c))
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					gongin.H{"error": "internal server error"})
			}
			return
		}

		if !result.Success {
			switch result.Code {
			case admit.StatusRateLimitExceeded:
				if cfg.OnRateLimitExceeded != nil {
					cfg.OnRateLimitExceeded(c, result)
				} else {
					c.Header("Retry-After", strconv.Itoa(cfg.RetryAfterSeconds))
					c.AbortWithStatusJSON(http.StatusTooManyRequests,
						gongin.H{"error": result.Message, "code": result.Code})
				}
			case admit.StatusInsufficientCredits:
				if cfg.OnInsufficientCredits != nil {
					cfg.OnInsufficientCredits(c, result)
				} else {
					c.AbortWithStatusJSON(http.StatusPaymentRequired,
						gongin.H{"error": result.Message, "code": result.Code})
				}
			default:
				c.AbortWithStatusJSON(http.StatusForbidden,
					gongin.H{"error": result.Message, "code": result.Code})
			}
			return
		}

		c.Next()
	}
}
