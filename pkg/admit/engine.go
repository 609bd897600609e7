// Package admit implements a per-user quota and admission control
// engine for billed, rate-limited actions. Every decision consults a
// consumable credit ledger, a subscription tracker, and a token-bucket
// rate limiter whose sizing depends on the subscription tier.
package admit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Engine makes admission decisions for per-user accounts. All
// operations on the same user are serialized by a keyed lock; accounts
// are loaded from and written back to the configured Store around each
// operation.
type Engine struct {
	store   Store
	config  ConfigSource
	logger  Logger
	metrics Metrics
	locks   *keyLock
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger (default: NoopLogger).
func WithLogger(l Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metrics sink (default: NoopMetrics).
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source. Used by tests to drive bucket
// refills deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an admission engine backed by the given store and
// configuration source.
func NewEngine(store Store, config ConfigSource, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}
	if config == nil {
		config = NewStaticSource(DefaultConfig())
	}
	e := &Engine{
		store:   store,
		config:  config,
		logger:  &NoopLogger{},
		metrics: &NoopMetrics{},
		locks:   newKeyLock(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// load fetches the account for a user, creating a fresh default account
// for users never seen before.
func (e *Engine) load(ctx context.Context, userID string) (*Account, error) {
	start := time.Now()
	acct, err := e.store.Load(ctx, userID)
	e.metrics.RecordStoreOperation("load", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}
	if acct == nil {
		acct = NewAccount(e.now())
	}
	if acct.RateLimits == nil {
		acct.RateLimits = make(map[string]*RateLimitState)
	}
	return acct, nil
}

func (e *Engine) save(ctx context.Context, userID string, acct *Account) error {
	start := time.Now()
	err := e.store.Save(ctx, userID, acct)
	e.metrics.RecordStoreOperation("save", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("save account %s: %w", userID, err)
	}
	return nil
}

// InitializeCredits applies the one-time credit grant. It is
// idempotent: the grant happens at most once per account, and the call
// reports success either way.
func (e *Engine) InitializeCredits(ctx context.Context, userID string) (bool, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if e.initializeCreditsLocked(userID, acct) {
		if err := e.save(ctx, userID, acct); err != nil {
			return false, err
		}
	}
	return true, nil
}

// initializeCreditsLocked applies the grant in memory and reports
// whether the account was mutated.
func (e *Engine) initializeCreditsLocked(userID string, acct *Account) bool {
	if acct.HasInitialCredits {
		return false
	}
	initial := e.config.Current().withDefaults().InitialCredits
	acct.Credits = initial
	acct.HasInitialCredits = true
	e.metrics.RecordCreditsGranted("initial", initial)
	e.logger.Debug("initial credits granted",
		Field{"userId", userID}, Field{"credits", initial})
	return true
}

// GetCredits reports the current balance and whether the initial-grant
// toast is still owed to the client. It triggers the lazy grant but
// does not clear the toast flag.
func (e *Engine) GetCredits(ctx context.Context, userID string) (*CreditsInfo, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if e.initializeCreditsLocked(userID, acct) {
		if err := e.save(ctx, userID, acct); err != nil {
			return nil, err
		}
	}
	return &CreditsInfo{
		IsInitialized:   acct.HasInitialCredits,
		Credits:         acct.Credits,
		ShouldShowToast: acct.HasInitialCredits && !acct.HasShownInitialCreditsToast,
	}, nil
}

// SetShownCreditsToast persists the client's acknowledgement of the
// initial-grant notification.
func (e *Engine) SetShownCreditsToast(ctx context.Context, userID string, shown bool) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	acct.HasShownInitialCreditsToast = shown
	return e.save(ctx, userID, acct)
}

// AddCredits grants additional credits (invitation bonuses, promotions).
// There is no upper bound. Negative amounts are ignored with a warning.
func (e *Engine) AddCredits(ctx context.Context, userID string, amount int) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	mutated := e.initializeCreditsLocked(userID, acct)
	if amount < 0 {
		e.logger.Warn("ignoring negative credit grant",
			Field{"userId", userID}, Field{"amount", amount})
		if mutated {
			return e.save(ctx, userID, acct)
		}
		return nil
	}
	acct.Credits += amount
	e.metrics.RecordCreditsGranted("reward", amount)
	e.logger.Info("credits added",
		Field{"userId", userID}, Field{"added", amount}, Field{"credits", acct.Credits})
	return e.save(ctx, userID, acct)
}

// DebitCredits consumes credits if the balance covers the amount. It
// reports false, leaving the balance untouched, when it does not.
func (e *Engine) DebitCredits(ctx context.Context, userID string, amount int) (bool, error) {
	if amount < 0 {
		return false, ErrInvalidAmount
	}
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if acct.Credits < amount {
		return false, nil
	}
	acct.Credits -= amount
	if err := e.save(ctx, userID, acct); err != nil {
		return false, err
	}
	return true, nil
}

// AdjustCredits applies an operator-initiated balance change (positive
// or negative). The resulting balance is clamped at zero. Only
// operators on the configured allow list may call this.
func (e *Engine) AdjustCredits(ctx context.Context, userID, operatorID string, delta int) (int, error) {
	cfg := e.config.Current().withDefaults()
	authorized := false
	for _, op := range cfg.OperatorUserIDs {
		if op == operatorID {
			authorized = true
			break
		}
	}
	if !authorized {
		e.logger.Warn("unauthorized credit adjustment",
			Field{"userId", userID}, Field{"operatorId", operatorID})
		return 0, ErrUnauthorizedOperator
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	old := acct.Credits
	acct.Credits += delta
	if acct.Credits < 0 {
		acct.Credits = 0
	}
	if err := e.save(ctx, userID, acct); err != nil {
		return 0, err
	}
	if acct.Credits > old {
		e.metrics.RecordCreditsGranted("admin", acct.Credits-old)
	}
	e.logger.Info("credits adjusted",
		Field{"userId", userID}, Field{"operatorId", operatorID},
		Field{"old", old}, Field{"new", acct.Credits})
	return acct.Credits, nil
}

// IsSubscribed reports whether the account holds an active plan of the
// requested tier. A record that claims active but whose time window has
// lapsed is expired here, lazily: the conversation bucket is dropped so
// the account reverts to free-tier sizing on its very next action.
func (e *Engine) IsSubscribed(ctx context.Context, userID string, ultimate bool) (bool, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return false, err
	}
	subscribed, mutated := e.isSubscribedLocked(userID, acct, ultimate)
	if mutated {
		if err := e.save(ctx, userID, acct); err != nil {
			return false, err
		}
	}
	return subscribed, nil
}

// isSubscribedLocked evaluates the subscription window and performs
// lazy expiry in memory. The caller persists when mutated is true.
func (e *Engine) isSubscribedLocked(userID string, acct *Account, ultimate bool) (subscribed, mutated bool) {
	sub := &acct.Subscription
	if ultimate {
		sub = &acct.UltimateSubscription
	}
	now := e.now()
	subscribed = sub.IsActive && !sub.StartDate.After(now) && sub.EndDate.After(now)

	if sub.IsActive && !sub.EndDate.After(now) {
		delete(acct.RateLimits, ActionConversation)
		sub.IsActive = false
		mutated = true
		e.metrics.RecordSubscriptionEvent("expired", sub.PlanType)
		e.logger.Debug("subscription expired",
			Field{"userId", userID}, Field{"ultimate", ultimate},
			Field{"endDate", sub.EndDate}, Field{"now", now})
	}
	return subscribed, mutated
}

// GetSubscription returns a read-only projection of the requested
// subscription record.
func (e *Engine) GetSubscription(ctx context.Context, userID string, ultimate bool) (*SubscriptionInfo, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	sub := acct.Subscription
	if ultimate {
		sub = acct.UltimateSubscription
	}
	sub = sub.clone()
	return &sub, nil
}

// UpdateSubscription overwrites the subscription record of the given
// tier. Payment webhook handlers call this when a plan is purchased or
// renewed.
func (e *Engine) UpdateSubscription(ctx context.Context, userID string, info SubscriptionInfo, ultimate bool) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	if ultimate {
		acct.UltimateSubscription = info.clone()
	} else {
		acct.Subscription = info.clone()
	}
	if err := e.save(ctx, userID, acct); err != nil {
		return err
	}
	if info.IsActive {
		e.metrics.RecordSubscriptionEvent("activated", info.PlanType)
	}
	e.logger.Info("subscription updated",
		Field{"userId", userID}, Field{"plan", info.PlanType},
		Field{"ultimate", ultimate}, Field{"endDate", info.EndDate})
	return nil
}

// UpdateSubscriptionPlan activates a plan identified by its name,
// starting now and lapsing at endDate. An unparsable plan string is an
// integration error and fails hard. Rate limits are reset so the new
// tier's bucket sizing takes effect immediately.
func (e *Engine) UpdateSubscriptionPlan(ctx context.Context, userID, plan string, endDate time.Time) error {
	planType, err := ParsePlanType(plan)
	if err != nil {
		return err
	}

	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	sub := &acct.Subscription
	ultimate := IsUltimatePlan(planType)
	if ultimate {
		sub = &acct.UltimateSubscription
	}
	sub.PlanType = planType
	sub.IsActive = true
	sub.StartDate = e.now()
	sub.EndDate = endDate
	sub.Status = PaymentStatusCompleted
	delete(acct.RateLimits, ActionConversation)

	if err := e.save(ctx, userID, acct); err != nil {
		return err
	}
	e.metrics.RecordSubscriptionEvent("activated", planType)
	e.logger.Info("subscription plan activated",
		Field{"userId", userID}, Field{"plan", planType}, Field{"endDate", endDate})
	return nil
}

// CancelSubscription deactivates any active plan on the account,
// standard and ultimate alike. It is a no-op for inactive records.
func (e *Engine) CancelSubscription(ctx context.Context, userID string) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	mutated := false
	for _, sub := range []*SubscriptionInfo{&acct.Subscription, &acct.UltimateSubscription} {
		if !sub.IsActive {
			continue
		}
		sub.IsActive = false
		sub.Status = PaymentStatusCancelled
		mutated = true
		e.metrics.RecordSubscriptionEvent("cancelled", sub.PlanType)
		e.logger.Info("subscription cancelled",
			Field{"userId", userID}, Field{"plan", sub.PlanType})
	}
	if !mutated {
		return nil
	}
	return e.save(ctx, userID, acct)
}

// RedeemInviteReward grants a one-week subscription as an invitation
// reward. The reward can be redeemed once, only within the configured
// window after it was granted, and only by accounts without an active
// plan.
func (e *Engine) RedeemInviteReward(ctx context.Context, userID string, grantedAt time.Time) (bool, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return false, err
	}
	if !acct.CanReceiveInviteReward {
		return false, nil
	}

	cfg := e.config.Current().withDefaults()
	now := e.now()
	if now.Sub(grantedAt) > time.Duration(cfg.InviteRewardWindowHours)*time.Hour {
		e.logger.Warn("invite reward redemption window expired",
			Field{"userId", userID}, Field{"grantedAt", grantedAt}, Field{"now", now})
		acct.CanReceiveInviteReward = false
		return false, e.save(ctx, userID, acct)
	}

	if subscribed, _ := e.isSubscribedLocked(userID, acct, false); subscribed {
		e.logger.Warn("invite reward refused for subscribed account",
			Field{"userId", userID})
		acct.CanReceiveInviteReward = false
		return false, e.save(ctx, userID, acct)
	}

	endDate, err := SubscriptionEndDate(PlanWeek, now)
	if err != nil {
		return false, err
	}
	acct.Subscription = SubscriptionInfo{
		IsActive:  true,
		PlanType:  PlanWeek,
		Status:    PaymentStatusCompleted,
		StartDate: now,
		EndDate:   endDate,
	}
	acct.CanReceiveInviteReward = false
	if err := e.save(ctx, userID, acct); err != nil {
		return false, err
	}
	e.metrics.RecordSubscriptionEvent("invite_reward", PlanWeek)
	return true, nil
}

// IsActionAllowed is the read-only admission gate: it resolves the
// effective tier, refills the token bucket, and evaluates the credit
// and rate-limit gates without committing anything. The refill itself
// is persisted even on this path.
func (e *Engine) IsActionAllowed(ctx context.Context, userID, actionType string) (*ActionResult, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := e.config.Current().withDefaults()

	if subscribed, mutated := e.isSubscribedLocked(userID, acct, true); subscribed {
		if mutated {
			if err := e.save(ctx, userID, acct); err != nil {
				return nil, err
			}
		}
		e.metrics.RecordAdmission(actionType, "ultimate", true, "")
		return Allowed(), nil
	}

	subscribed, _ := e.isSubscribedLocked(userID, acct, false)
	maxTokens, window := cfg.bucketParams(subscribed)
	e.refillLocked(userID, acct, actionType, maxTokens, window)

	if !subscribed {
		e.initializeCreditsLocked(userID, acct)
	}
	if err := e.save(ctx, userID, acct); err != nil {
		return nil, err
	}

	tier := "free"
	if subscribed {
		tier = "subscribed"
	}

	if !subscribed && acct.Credits < cfg.CreditsPerConversation {
		e.metrics.RecordAdmission(actionType, tier, false, StatusInsufficientCredits)
		return Denied(StatusInsufficientCredits,
			insufficientCreditsMessage(cfg.CreditsPerConversation)), nil
	}
	if acct.RateLimits[actionType].Count <= 0 {
		e.metrics.RecordAdmission(actionType, tier, false, StatusRateLimitExceeded)
		return Denied(StatusRateLimitExceeded,
			rateLimitMessage(maxTokens, window)), nil
	}
	e.metrics.RecordAdmission(actionType, tier, true, "")
	return Allowed(), nil
}

// ExecuteAction is the committing admission gate: on success it spends
// one bucket token and, for free-tier accounts, debits the per-action
// credit cost.
//
// The commit sequence deliberately re-reads the persisted bucket before
// decrementing and once more afterwards, decrementing a second time if
// the persisted count was not observed to drop. Under the per-key
// serialization guarantee both re-reads see the engine's own writes;
// they only matter when that guarantee is violated by the hosting
// platform, and even then they mitigate rather than prevent lost
// updates. A failed credit debit after the token was spent is not
// rolled back.
func (e *Engine) ExecuteAction(ctx context.Context, userID, sessionID, actionType string) (*ActionResult, error) {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cfg := e.config.Current().withDefaults()

	// Ultimate subscribers bypass both gates entirely.
	if subscribed, mutated := e.isSubscribedLocked(userID, acct, true); subscribed {
		if mutated {
			if err := e.save(ctx, userID, acct); err != nil {
				return nil, err
			}
		}
		e.metrics.RecordAdmission(actionType, "ultimate", true, "")
		return Allowed(), nil
	}

	subscribed, _ := e.isSubscribedLocked(userID, acct, false)
	maxTokens, window := cfg.bucketParams(subscribed)
	tier := "free"
	if subscribed {
		tier = "subscribed"
	}
	e.logger.Debug("execute action",
		Field{"userId", userID}, Field{"sessionId", sessionID},
		Field{"actionType", actionType}, Field{"maxTokens", maxTokens},
		Field{"windowSeconds", window}, Field{"subscribed", subscribed})

	e.refillLocked(userID, acct, actionType, maxTokens, window)
	if err := e.save(ctx, userID, acct); err != nil {
		return nil, err
	}

	if acct.RateLimits[actionType].Count <= 0 {
		e.logger.Warn("rate limited",
			Field{"userId", userID}, Field{"sessionId", sessionID},
			Field{"actionType", actionType})
		e.metrics.RecordAdmission(actionType, tier, false, StatusRateLimitExceeded)
		return Denied(StatusRateLimitExceeded, rateLimitMessage(maxTokens, window)), nil
	}

	// Re-read the persisted bucket and reject if it emptied since the
	// refill write above.
	fresh, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	bucket := fresh.RateLimits[actionType]
	if bucket == nil || bucket.Count <= 0 {
		e.metrics.RecordAdmission(actionType, tier, false, StatusRateLimitExceeded)
		return Denied(StatusRateLimitExceeded, rateLimitMessage(maxTokens, window)), nil
	}
	preDecrement := bucket.Count

	bucket.Count--
	if err := e.save(ctx, userID, fresh); err != nil {
		return nil, err
	}

	if !subscribed {
		granted := e.initializeCreditsLocked(userID, fresh)
		cost := cfg.CreditsPerConversation
		if fresh.Credits < cost {
			// The token spent above stays spent; the two debits are
			// not transactional.
			if granted {
				if err := e.save(ctx, userID, fresh); err != nil {
					return nil, err
				}
			}
			e.metrics.RecordAdmission(actionType, tier, false, StatusInsufficientCredits)
			return Denied(StatusInsufficientCredits,
				insufficientCreditsMessage(cost)), nil
		}
		fresh.Credits -= cost
		if err := e.save(ctx, userID, fresh); err != nil {
			return nil, err
		}
		e.metrics.RecordCreditsDebited(actionType, cost)
	}

	// Reconciliation pass: if the persisted count never dropped below
	// its pre-decrement value, another decrement is applied as a
	// safety net against a stale write having been lost.
	check, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cb := check.RateLimits[actionType]; cb != nil && cb.Count >= preDecrement {
		cb.Count--
		if err := e.save(ctx, userID, check); err != nil {
			return nil, err
		}
		e.logger.Warn("fallback decrement applied",
			Field{"userId", userID}, Field{"sessionId", sessionID},
			Field{"actionType", actionType}, Field{"count", cb.Count})
	}

	e.metrics.RecordAdmission(actionType, tier, true, "")
	return Allowed(), nil
}

// refillLocked creates or refills the bucket for an action type.
func (e *Engine) refillLocked(userID string, acct *Account, actionType string, maxTokens, window int) {
	bucket, ok := acct.RateLimits[actionType]
	if !ok {
		bucket = newBucket(maxTokens, e.now())
		acct.RateLimits[actionType] = bucket
		e.logger.Debug("bucket created",
			Field{"userId", userID}, Field{"actionType", actionType},
			Field{"count", bucket.Count})
		return
	}
	if added := refillBucket(bucket, maxTokens, window, e.now()); added > 0 {
		e.logger.Debug("bucket refilled",
			Field{"userId", userID}, Field{"actionType", actionType},
			Field{"added", added}, Field{"count", bucket.Count})
	}
}

// ResetRateLimits drops the bucket for an action type so it is
// recreated full on next use.
func (e *Engine) ResetRateLimits(ctx context.Context, userID, actionType string) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	acct, err := e.load(ctx, userID)
	if err != nil {
		return err
	}
	delete(acct.RateLimits, actionType)
	return e.save(ctx, userID, acct)
}

// ClearAll resets the account to its zero-value defaults. The initial
// credit grant is not re-run; the next call that needs it will.
func (e *Engine) ClearAll(ctx context.Context, userID string) error {
	unlock := e.locks.lock(userID)
	defer unlock()

	return e.save(ctx, userID, NewAccount(e.now()))
}

func insufficientCreditsMessage(cost int) string {
	return fmt.Sprintf("You've run out of credits (%d credits per conversation).", cost)
}

func rateLimitMessage(maxTokens, windowSeconds int) string {
	hours := strconv.FormatFloat(float64(windowSeconds)/3600, 'f', -1, 64)
	return fmt.Sprintf("Message limit reached (%d in %s hours)", maxTokens, hours)
}
