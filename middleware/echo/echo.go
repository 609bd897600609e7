// Package echo provides Echo middleware for admission enforcement
package echo

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// UserIDExtractor extracts the user ID from an Echo context
// Return empty string if user is not authenticated
type UserIDExtractor func(c echo.Context) string

// SessionIDExtractor extracts the session ID from an Echo context
// Return empty string if no session is available
type SessionIDExtractor func(c echo.Context) string

// ActionExtractor extracts the action type from an Echo context
// For example: "conversation", "image_generation"
type ActionExtractor func(c echo.Context) string

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
	OnRateLimitExceeded func(c echo.Context, result *admit.ActionResult) error

	// OnInsufficientCredits is called when the credit balance cannot
	// cover the action. If nil, returns 402 JSON
	OnInsufficientCredits func(c echo.Context, result *admit.ActionResult) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that admits or rejects requests
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.Engine == nil {
		panic("goadmit/echo: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("goadmit/echo: Config.GetUserID is required")
	}
	if cfg.GetSessionID == nil {
		cfg.GetSessionID = func(c echo.Context) string {
			return c.Request().Header.Get("X-Session-ID")
		}
	}
	if cfg.GetAction == nil {
		cfg.GetAction = func(echo.Context) string { return admit.ActionConversation }
	}
	if cfg.RetryAfterSeconds == 0 {
		cfg.RetryAfterSeconds = admit.DefaultUserWindowSeconds / admit.DefaultUserMaxRequests
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			result, err := cfg.Engine.ExecuteAction(c.Request().Context(), userID,
				cfg.GetSessionID(c), cfg.GetAction(c))
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError,
					map[string]string{"error": "internal server error"})
			}

			if !result.Success {
				switch result.Code {
				case admit.StatusRateLimitExceeded:
					if cfg.OnRateLimitExceeded != nil {
						return cfg.OnRateLimitExceeded(c, result)
					}
					c.Response().Header().Set("Retry-After", strconv.Itoa(cfg.RetryAfterSeconds))
					return c.JSON(http.StatusTooManyRequests, map[string]any{
						"error": result.Message, "code": result.Code,
					})
				case admit.StatusInsufficientCredits:
					if cfg.OnInsufficientCredits != nil {
						return cfg.OnInsufficientCredits(c, result)
					}
					return c.JSON(http.StatusPaymentRequired, map[string]any{
						"error": result.Message, "code": result.Code,
					})
				default:
					return c.JSON(http.StatusForbidden, map[string]any{
						"error": result.Message, "code": result.Code,
					})
				}
			}

			return next(c)
		}
	}
}
