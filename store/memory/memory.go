// Package memory provides an in-memory implementation of the admit.Store
// interface. This implementation is primarily intended for testing and
// development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Store implements admit.Store using an in-memory map.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*admit.Account
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*admit.Account),
	}
}

// Load implements admit.Store. An unknown user returns (nil, nil).
func (s *Store) Load(ctx context.Context, userID string) (*admit.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent external mutations
	return acct.Clone(), nil
}

// Save implements admit.Store.
func (s *Store) Save(ctx context.Context, userID string, account *admit.Account) error {
	if userID == "" || account == nil {
		return fmt.Errorf("invalid account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations
	s.accounts[userID] = account.Clone()
	return nil
}

// Delete implements admit.Store.
func (s *Store) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accounts, userID)
	return nil
}

// Clear removes all data (useful for testing).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]*admit.Account)
}
