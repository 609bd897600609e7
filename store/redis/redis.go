// Package redis provides a Redis implementation of the admit.Store
// interface. Each account is stored as a single JSON document so a
// load/save cycle moves the whole aggregate at once.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Store implements admit.Store using Redis.
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis store configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "goadmit:account:")
	KeyPrefix string

	// AccountTTL is the TTL for account keys (0 = no expiration)
	AccountTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "goadmit:account:",
		AccountTTL: 0, // Accounts don't expire
	}
}

// New creates a new Redis store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "goadmit:account:"
	}
	return &Store{client: client, config: config}, nil
}

// Load implements admit.Store.
func (s *Store) Load(ctx context.Context, userID string) (*admit.Account, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var acct admit.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("unmarshal account %s: %w", userID, err)
	}
	return &acct, nil
}

// Save implements admit.Store.
func (s *Store) Save(ctx context.Context, userID string, account *admit.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("marshal account %s: %w", userID, err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, s.config.AccountTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements admit.Store.
func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) key(userID string) string {
	return s.config.KeyPrefix + userID
}
