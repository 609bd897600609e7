// Package fiber provides Fiber middleware for admission enforcement
package fiber

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// UserIDExtractor extracts the user ID from a Fiber context
// Return empty string if user is not authenticated
type UserIDExtractor func(c *fiber.Ctx) string

// SessionIDExtractor extracts the session ID from a Fiber context
// Return empty string if no session is available
type SessionIDExtractor func(c *fiber.Ctx) string

// ActionExtractor extracts the action type from a Fiber context
// For example: "conversation", "image_generation"
type ActionExtractor func(c *fiber.Ctx) string

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
	OnRateLimitExceeded func(c *fiber.Ctx, result *admit.ActionResult) error

	// OnInsufficientCredits is called when the credit balance cannot
	// cover the action. If nil, returns 402 JSON
	OnInsufficientCredits func(c *fiber.Ctx, result *admit.ActionResult) error

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that admits or rejects requests
func Middleware(cfg Config) fiber.Handler {
	if cfg.Engine == nil {
		panic("goadmit/fiber: Config.Engine is required")
	}
	if cfg.GetUserID == nil {
		panic("goadmit/fiber: Config.GetUserID is required")
	}
	if cfg.GetSessionID == nil {
		cfg.GetSessionID = func(c *fiber.Ctx) string {
			return c.Get("X-Session-ID")
		}
	}
	if cfg.GetAction == nil {
		cfg.GetAction = func(*fiber.Ctx) string { return admit.ActionConversation }
	}
	if cfg.RetryAfterSeconds == 0 {
		cfg.RetryAfterSeconds = admit.DefaultUserWindowSeconds / admit.DefaultUserMaxRequests
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).
				JSON(fiber.Map{"error": "unauthorized"})
		}

		result, err := cfg.Engine.ExecuteAction(c.UserContext(), userID,
			cfg.GetSessionID(c), cfg.GetAction(c))
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "internal server error"})
		}

		if !result.Success {
			switch result.Code {
			case admit.StatusRateLimitExceeded:
				if cfg.OnRateLimitExceeded != nil {
					return cfg.OnRateLimitExceeded(c, result)
				}
				c.Set("Retry-After", strconv.Itoa(cfg.RetryAfterSeconds))
				return c.Status(fiber.StatusTooManyRequests).
					JSON(fiber.Map{"error": result.Message, "code": result.Code})
			case admit.StatusInsufficientCredits:
				if cfg.OnInsufficientCredits != nil {
					return cfg.OnInsufficientCredits(c, result)
				}
				return c.Status(fiber.StatusPaymentRequired).
					JSON(fiber.Map{"error": result.Message, "code": result.Code})
			default:
				return c.Status(fiber.StatusForbidden).
					JSON(fiber.Map{"error": result.Message, "code": result.Code})
			}
		}

		return c.Next()
	}
}
