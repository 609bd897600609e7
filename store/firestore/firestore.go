// Package firestore provides a Firestore implementation of the
// admit.Store interface, one document per user account.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Store implements admit.Store using Google Cloud Firestore.
type Store struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore store configuration.
type Config struct {
	// Collection is the Firestore collection for user accounts.
	// Default: "admit_accounts"
	Collection string
}

// New creates a new Firestore store.
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "admit_accounts"
	}
	return &Store{client: client, collection: config.Collection}, nil
}

// accountDoc is the Firestore document shape. Maps with pointer values
// do not round-trip through the Firestore codec, so buckets are stored
// by value.
type accountDoc struct {
	Credits                     int                             `firestore:"credits"`
	HasInitialCredits           bool                            `firestore:"hasInitialCredits"`
	HasShownInitialCreditsToast bool                            `firestore:"hasShownInitialCreditsToast"`
	Subscription                admit.SubscriptionInfo          `firestore:"subscription"`
	UltimateSubscription        admit.SubscriptionInfo          `firestore:"ultimateSubscription"`
	RateLimits                  map[string]admit.RateLimitState `firestore:"rateLimits"`
	CreatedAt                   time.Time                       `firestore:"createdAt"`
	CanReceiveInviteReward      bool                            `firestore:"canReceiveInviteReward"`
}

// Load implements admit.Store.
func (s *Store) Load(ctx context.Context, userID string) (*admit.Account, error) {
	snap, err := s.client.Collection(s.collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var doc accountDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", userID, err)
	}
	return doc.toAccount(), nil
}

// Save implements admit.Store.
func (s *Store) Save(ctx context.Context, userID string, account *admit.Account) error {
	if account == nil {
		return fmt.Errorf("account is required")
	}
	_, err := s.client.Collection(s.collection).Doc(userID).Set(ctx, fromAccount(account))
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Delete implements admit.Store.
func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.client.Collection(s.collection).Doc(userID).Delete(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func fromAccount(a *admit.Account) accountDoc {
	doc := accountDoc{
		Credits:                     a.Credits,
		HasInitialCredits:           a.HasInitialCredits,
		HasShownInitialCreditsToast: a.HasShownInitialCreditsToast,
		Subscription:                a.Subscription,
		UltimateSubscription:        a.UltimateSubscription,
		RateLimits:                  make(map[string]admit.RateLimitState, len(a.RateLimits)),
		CreatedAt:                   a.CreatedAt,
		CanReceiveInviteReward:      a.CanReceiveInviteReward,
	}
	for action, rl := range a.RateLimits {
		doc.RateLimits[action] = *rl
	}
	return doc
}

func (d accountDoc) toAccount() *admit.Account {
	acct := &admit.Account{
		Credits:                     d.Credits,
		HasInitialCredits:           d.HasInitialCredits,
		HasShownInitialCreditsToast: d.HasShownInitialCreditsToast,
		Subscription:                d.Subscription,
		UltimateSubscription:        d.UltimateSubscription,
		RateLimits:                  make(map[string]*admit.RateLimitState, len(d.RateLimits)),
		CreatedAt:                   d.CreatedAt,
		CanReceiveInviteReward:      d.CanReceiveInviteReward,
	}
	for action, rl := range d.RateLimits {
		rlCopy := rl
		acct.RateLimits[action] = &rlCopy
	}
	return acct
}
