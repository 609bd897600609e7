package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Config holds handler configuration
type Config struct {
	// Engine is the admission engine instance (required)
	Engine *admit.Engine

	// GetUserID extracts user ID from HTTP request (required)
	// Similar to middleware/http pattern
	GetUserID func(*http.Request) string

	// Store optionally exposes raw account state so status responses
	// can include token bucket levels. If nil, rate limits are omitted.
	Store admit.Store

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional; if nil, nothing is logged
	Logger admit.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("GetUserID is required")
	}
	return nil
}

// NewHandler creates a Handler from the configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &admit.NoopLogger{}
	}
	return &Handler{config: config}, nil
}
