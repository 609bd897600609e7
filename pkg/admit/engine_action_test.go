package admit_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/goadmit/pkg/admit"
	"github.com/mihaimyh/goadmit/store/memory"
)

// countingStore wraps a backing store and counts Save calls.
type countingStore struct {
	admit.Store
	saves int
}

func (s *countingStore) Save(ctx context.Context, userID string, account *admit.Account) error {
	s.saves++
	return s.Store.Save(ctx, userID, account)
}

func TestExecuteActionFreshAccount(t *testing.T) {
	engine, _, store := newTestEngine(t)
	ctx := context.Background()

	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got code=%q message=%q", res.Code, res.Message)
	}

	// First use pays the action cost out of the initial grant and spends
	// one bucket token.
	acct, _ := store.Load(ctx, "user1")
	if acct.Credits != admit.DefaultInitialCredits-admit.DefaultCreditsPerConversation {
		t.Errorf("expected %d credits, got %d",
			admit.DefaultInitialCredits-admit.DefaultCreditsPerConversation, acct.Credits)
	}
	bucket := acct.RateLimits[admit.ActionConversation]
	if bucket == nil {
		t.Fatal("expected conversation bucket to exist")
	}
	if bucket.Count != admit.DefaultUserMaxRequests-1 {
		t.Errorf("expected %d tokens, got %d", admit.DefaultUserMaxRequests-1, bucket.Count)
	}
}

func TestExecuteActionRateLimitExhaustion(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < admit.DefaultUserMaxRequests; i++ {
		res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
		if err != nil {
			t.Fatalf("ExecuteAction %d failed: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("action %d unexpectedly denied: %q", i, res.Message)
		}
	}

	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected denial after bucket exhaustion")
	}
	if res.Code != admit.StatusRateLimitExceeded {
		t.Errorf("expected code %q, got %q", admit.StatusRateLimitExceeded, res.Code)
	}
	if !strings.Contains(res.Message, "25") || !strings.Contains(res.Message, "3 hours") {
		t.Errorf("expected limits embedded in message, got %q", res.Message)
	}
}

func TestExecuteActionContinuousRefill(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < admit.DefaultUserMaxRequests; i++ {
		engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	}

	// 25 tokens over 10800s is one token every 432s. One second short of
	// that, nothing has accrued.
	clock.Advance(431 * time.Second)
	res, _ := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if res.Success {
		t.Fatal("expected denial before a full token accrued")
	}

	clock.Advance(1 * time.Second)
	res, _ = engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if !res.Success {
		t.Fatalf("expected one token after 432s, got code=%q", res.Code)
	}

	// The token was spent immediately; the next call is denied again.
	res, _ = engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if res.Success {
		t.Fatal("expected denial after spending the refilled token")
	}
}

func TestExecuteActionSubscribedTier(t *testing.T) {
	engine, clock, store := newTestEngine(t)
	ctx := context.Background()

	engine.UpdateSubscriptionPlan(ctx, "user1", "month", clock.Now().AddDate(0, 0, 30))

	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}

	// Subscribers are not charged credits and get the larger bucket.
	acct, _ := store.Load(ctx, "user1")
	if acct.Credits != 0 {
		t.Errorf("subscriber was charged credits: %d", acct.Credits)
	}
	bucket := acct.RateLimits[admit.ActionConversation]
	if bucket.Count != admit.DefaultSubscribedUserMaxRequests-1 {
		t.Errorf("expected %d tokens, got %d",
			admit.DefaultSubscribedUserMaxRequests-1, bucket.Count)
	}
}

func TestExecuteActionUltimateBypass(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	engine.UpdateSubscriptionPlan(ctx, "user1", "month_ultimate", clock.Now().AddDate(0, 0, 30))

	// Ultimate subscribers are admitted regardless of credits or bucket
	// state, and neither is touched.
	for i := 0; i < 200; i++ {
		res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
		if err != nil {
			t.Fatalf("ExecuteAction %d failed: %v", i, err)
		}
		if !res.Success {
			t.Fatalf("ultimate subscriber denied on call %d: %q", i, res.Message)
		}
	}

	info, _ := engine.GetCredits(ctx, "user1")
	if info.Credits != admit.DefaultInitialCredits {
		t.Errorf("ultimate subscriber was charged: %d credits", info.Credits)
	}
}

func TestExecuteActionCreditFloor(t *testing.T) {
	engine, _, store := newTestEngine(t)
	ctx := context.Background()

	engine.InitializeCredits(ctx, "user1")
	engine.DebitCredits(ctx, "user1",
		admit.DefaultInitialCredits-admit.DefaultCreditsPerConversation)

	// Exactly one action's worth of credits left: the action succeeds
	// and leaves the balance at zero.
	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success at the credit floor, got %q", res.Message)
	}
	info, _ := engine.GetCredits(ctx, "user1")
	if info.Credits != 0 {
		t.Errorf("expected 0 credits, got %d", info.Credits)
	}

	// The next call fails on credits even though the bucket still has
	// tokens, and the token spent before the debit check stays spent.
	res, err = engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected denial with empty balance")
	}
	if res.Code != admit.StatusInsufficientCredits {
		t.Errorf("expected code %q, got %q", admit.StatusInsufficientCredits, res.Code)
	}

	acct, _ := store.Load(ctx, "user1")
	if got := acct.RateLimits[admit.ActionConversation].Count; got != admit.DefaultUserMaxRequests-2 {
		t.Errorf("expected token spent on the failed attempt, count=%d", got)
	}
}

func TestExecuteActionCreditDenialWriteCount(t *testing.T) {
	clock := newFakeClock()
	store := &countingStore{Store: memory.New()}
	engine, err := admit.NewEngine(store, admit.NewStaticSource(admit.DefaultConfig()),
		admit.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	ctx := context.Background()

	engine.InitializeCredits(ctx, "user1")
	engine.DebitCredits(ctx, "user1", admit.DefaultInitialCredits)

	// With the grant long since applied, a credit denial writes the
	// refilled bucket and the token decrement and nothing else.
	store.saves = 0
	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected denial with empty balance")
	}
	if res.Code != admit.StatusInsufficientCredits {
		t.Fatalf("expected code %q, got %q", admit.StatusInsufficientCredits, res.Code)
	}
	if store.saves != 2 {
		t.Errorf("credit denial issued %d writes, want 2", store.saves)
	}
}

func TestExecuteActionExpiryMidWindow(t *testing.T) {
	engine, clock, store := newTestEngine(t)
	ctx := context.Background()

	engine.UpdateSubscriptionPlan(ctx, "user1", "week", clock.Now().AddDate(0, 0, 7))
	for i := 0; i < 10; i++ {
		engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	}

	clock.Advance(8 * 24 * time.Hour)

	// Expiry drops the conversation bucket, so the first free-tier call
	// starts from a full free-tier bucket.
	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success after expiry, got %q", res.Message)
	}
	acct, _ := store.Load(ctx, "user1")
	if got := acct.RateLimits[admit.ActionConversation].Count; got != admit.DefaultUserMaxRequests-1 {
		t.Errorf("expected fresh free-tier bucket, count=%d", got)
	}
	if acct.Credits != admit.DefaultInitialCredits-admit.DefaultCreditsPerConversation {
		t.Errorf("expected free-tier billing to resume, credits=%d", acct.Credits)
	}
}

func TestIsActionAllowedDoesNotConsume(t *testing.T) {
	engine, _, store := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := engine.IsActionAllowed(ctx, "user1", admit.ActionConversation)
		if err != nil {
			t.Fatalf("IsActionAllowed failed: %v", err)
		}
		if !res.Success {
			t.Fatalf("expected allowed, got %q", res.Message)
		}
	}

	acct, _ := store.Load(ctx, "user1")
	if got := acct.RateLimits[admit.ActionConversation].Count; got != admit.DefaultUserMaxRequests {
		t.Errorf("read-only check consumed tokens: count=%d", got)
	}
	if acct.Credits != admit.DefaultInitialCredits {
		t.Errorf("read-only check debited credits: %d", acct.Credits)
	}
}

func TestIsActionAllowedDeniesOnCredits(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	engine.InitializeCredits(ctx, "user1")
	engine.DebitCredits(ctx, "user1", admit.DefaultInitialCredits)

	res, err := engine.IsActionAllowed(ctx, "user1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("IsActionAllowed failed: %v", err)
	}
	if res.Success {
		t.Fatal("expected denial with zero credits")
	}
	if res.Code != admit.StatusInsufficientCredits {
		t.Errorf("expected code %q, got %q", admit.StatusInsufficientCredits, res.Code)
	}
	if !strings.Contains(res.Message, "credits") {
		t.Errorf("expected credits message, got %q", res.Message)
	}
}

func TestIsActionAllowedSubscriberIgnoresCredits(t *testing.T) {
	engine, clock, _ := newTestEngine(t)
	ctx := context.Background()

	engine.InitializeCredits(ctx, "user1")
	engine.DebitCredits(ctx, "user1", admit.DefaultInitialCredits)
	engine.UpdateSubscriptionPlan(ctx, "user1", "month", clock.Now().AddDate(0, 0, 30))

	res, err := engine.IsActionAllowed(ctx, "user1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("IsActionAllowed failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected subscriber to pass the credit gate, got %q", res.Message)
	}
}

func TestResetRateLimits(t *testing.T) {
	engine, _, store := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < admit.DefaultUserMaxRequests; i++ {
		engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	}
	res, _ := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if res.Success {
		t.Fatal("expected exhausted bucket")
	}

	if err := engine.ResetRateLimits(ctx, "user1", admit.ActionConversation); err != nil {
		t.Fatalf("ResetRateLimits failed: %v", err)
	}
	acct, _ := store.Load(ctx, "user1")
	if _, ok := acct.RateLimits[admit.ActionConversation]; ok {
		t.Error("expected bucket dropped by reset")
	}

	res, err := engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected full bucket after reset, got %q", res.Message)
	}
}

func TestExecuteActionIndependentBucketsPerAction(t *testing.T) {
	engine, _, store := newTestEngine(t)
	ctx := context.Background()

	engine.ExecuteAction(ctx, "user1", "sess-1", admit.ActionConversation)
	engine.ExecuteAction(ctx, "user1", "sess-1", "image_generation")

	acct, _ := store.Load(ctx, "user1")
	if len(acct.RateLimits) != 2 {
		t.Fatalf("expected two independent buckets, got %d", len(acct.RateLimits))
	}
	for action, bucket := range acct.RateLimits {
		if bucket.Count != admit.DefaultUserMaxRequests-1 {
			t.Errorf("action %q: expected count %d, got %d",
				action, admit.DefaultUserMaxRequests-1, bucket.Count)
		}
	}
}
