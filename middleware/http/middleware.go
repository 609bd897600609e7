// Package http provides HTTP middleware for admission enforcement
package http

import (
	"net/http"
	"strconv"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// UserIDExtractor extracts the user ID from an HTTP request
// Return empty string if user is not authenticated
type UserIDExtractor func(r *http.Request) string

// SessionIDExtractor extracts the session ID from an HTTP request
// Return empty string if no session is available
type SessionIDExtractor func(r *http.Request) string

// ActionExtractor extracts the action type from an HTTP request
// For example: "conversation", "image_generation"
type ActionExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Engine is the admission engine instance (required)
	Engine *admit.Engine

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// GetSessionID extracts session ID from request (optional)
	// If nil, defaults to the X-Session-ID header
	GetSessionID SessionIDExtractor

	// GetAction extracts the action type from request (optional)
	// If nil, every request is gated as a conversation
	GetAction ActionExtractor

	// RetryAfterSeconds is advertised in the Retry-After header on
	// rate-limited responses. Default: one token's accrual interval at
	// the free-tier defaults.
	RetryAfterSeconds int

	// OnRateLimitExceeded is called when the token bucket is empty
	// If nil, returns 429 Too Many Requests with a Retry-After header
	OnRateLimitExceeded func(w http.ResponseWriter, r *http.Request, result *admit.ActionResult)

	// OnInsufficientCredits is called when the credit balance cannot
	// cover the action. If nil, returns 402 Payment Required
	OnInsufficientCredits func(w http.ResponseWriter, r *http.Request, result *admit.ActionResult)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

func (c *Config) withDefaults() {
	if c.GetSessionID == nil {
		c.GetSessionID = func(r *http.Request) string {
			return r.Header.Get("X-Session-ID")
		}
	}
	if c.GetAction == nil {
		c.GetAction = func(*http.Request) string { return admit.ActionConversation }
	}
	if c.RetryAfterSeconds == 0 {
		c.RetryAfterSeconds = admit.DefaultUserWindowSeconds / admit.DefaultUserMaxRequests
	}
}

// Middleware creates an HTTP middleware that admits or rejects requests.
// Admitted requests have already consumed their bucket token and credit
// cost by the time the wrapped handler runs.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Engine == nil {
		panic("goadmit/http: Config.Engine is required")
	}
	if config.GetUserID == nil {
		panic("goadmit/http: Config.GetUserID is required")
	}
	config.withDefaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			result, err := config.Engine.ExecuteAction(r.Context(), userID,
				config.GetSessionID(r), config.GetAction(r))
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !result.Success {
				switch result.Code {
				case admit.StatusRateLimitExceeded:
					if config.OnRateLimitExceeded != nil {
						config.OnRateLimitExceeded(w, r, result)
					} else {
						w.Header().Set("Retry-After", strconv.Itoa(config.RetryAfterSeconds))
						http.Error(w, result.Message, http.StatusTooManyRequests)
					}
				case admit.StatusInsufficientCredits:
					if config.OnInsufficientCredits != nil {
						config.OnInsufficientCredits(w, r, result)
					} else {
						http.Error(w, result.Message, http.StatusPaymentRequired)
					}
				default:
					http.Error(w, result.Message, http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware that admits or rejects requests (HandlerFunc version)
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// HeaderUserID returns a UserIDExtractor reading a fixed header.
func HeaderUserID(header string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// PathAction returns an ActionExtractor that maps request paths to
// action types, falling back to the default action.
func PathAction(routes map[string]string) ActionExtractor {
	return func(r *http.Request) string {
		if action, ok := routes[r.URL.Path]; ok {
			return action
		}
		return admit.ActionConversation
	}
}
