package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is created
	// without its required configuration.
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrUserNotResolved is returned when a webhook event cannot be
	// attributed to a user.
	ErrUserNotResolved = errors.New("could not resolve user from billing event")
)
