// Package billing defines the provider-neutral surface that payment
// backends implement to drive subscription state in the admission
// engine.
package billing

import (
	"net/http"
)

// Provider is the generic interface that any billing backend must implement.
// This allows the application to swap payment providers with zero logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles validation, parsing, and engine updates internally.
	WebhookHandler() http.Handler
}
