package admit

import (
	"context"
)

// Store defines the durable per-user persistence boundary. The engine
// loads an account once per operation and writes it back after each
// mutation; each call must complete or fail atomically.
//
// Implementations must return copies: the engine owns the account it
// loads and a store must never hand the same pointer to two callers.
type Store interface {
	// Load retrieves the account for a user. A user that has never been
	// seen returns (nil, nil), not an error.
	Load(ctx context.Context, userID string) (*Account, error)

	// Save persists the full account state for a user.
	Save(ctx context.Context, userID string, account *Account) error

	// Delete removes the account record entirely.
	Delete(ctx context.Context, userID string) error
}
