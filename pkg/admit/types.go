package admit

import (
	"time"
)

// ActionConversation is the default action type gated by the engine.
const ActionConversation = "conversation"

// PlanType identifies a paid subscription plan.
type PlanType string

const (
	// PlanNone means no plan is associated with the subscription.
	PlanNone PlanType = "none"
	// PlanDay is a legacy plan kept for historical data; business logic
	// treats it as PlanWeek.
	PlanDay PlanType = "day"
	// PlanWeek is a 7-day standard plan.
	PlanWeek PlanType = "week"
	// PlanMonth is a 30-day standard plan.
	PlanMonth PlanType = "month"
	// PlanYear is a 390-day standard plan.
	PlanYear PlanType = "year"
	// PlanWeekUltimate is a 7-day ultimate plan.
	PlanWeekUltimate PlanType = "week_ultimate"
	// PlanMonthUltimate is a 30-day ultimate plan.
	PlanMonthUltimate PlanType = "month_ultimate"
	// PlanYearUltimate is a 390-day ultimate plan.
	PlanYearUltimate PlanType = "year_ultimate"
)

// PaymentStatus tracks the payment lifecycle of a subscription.
type PaymentStatus string

const (
	// PaymentStatusNone means no payment has been recorded.
	PaymentStatusNone PaymentStatus = "none"
	// PaymentStatusCompleted means the plan was paid for.
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusCancelled means the plan was cancelled by the user.
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// SubscriptionInfo is the paid-plan state tracked per account. Two of
// these live on every account: the standard subscription and the
// ultimate subscription, with independent lifecycles.
type SubscriptionInfo struct {
	IsActive        bool          `json:"isActive"`
	PlanType        PlanType      `json:"planType"`
	Status          PaymentStatus `json:"status"`
	StartDate       time.Time     `json:"startDate"`
	EndDate         time.Time     `json:"endDate"`
	SubscriptionIDs []string      `json:"subscriptionIds,omitempty"`
	InvoiceIDs      []string      `json:"invoiceIds,omitempty"`
}

// RateLimitState is one token bucket. Count is the number of tokens
// currently available; LastRefillTime is the last moment tokens were
// added. The bucket refills continuously, not on a fixed interval.
type RateLimitState struct {
	Count          int       `json:"count"`
	LastRefillTime time.Time `json:"lastRefillTime"`
}

// Account is the per-user aggregate and the unit of consistency. All
// mutation goes through the Engine; stores persist it as a whole.
type Account struct {
	Credits                    int                        `json:"credits"`
	HasInitialCredits          bool                       `json:"hasInitialCredits"`
	HasShownInitialCreditsToast bool                      `json:"hasShownInitialCreditsToast"`
	Subscription               SubscriptionInfo           `json:"subscription"`
	UltimateSubscription       SubscriptionInfo           `json:"ultimateSubscription"`
	RateLimits                 map[string]*RateLimitState `json:"rateLimits"`
	CreatedAt                  time.Time                  `json:"createdAt"`
	CanReceiveInviteReward     bool                       `json:"canReceiveInviteReward"`
}

// NewAccount returns a fresh account with default state. Credits stay
// at zero until the one-time grant runs.
func NewAccount(now time.Time) *Account {
	return &Account{
		Subscription:           SubscriptionInfo{PlanType: PlanNone, Status: PaymentStatusNone},
		UltimateSubscription:   SubscriptionInfo{PlanType: PlanNone, Status: PaymentStatusNone},
		RateLimits:             make(map[string]*RateLimitState),
		CreatedAt:              now,
		CanReceiveInviteReward: true,
	}
}

// Clone returns a deep copy of the account. Stores use this to avoid
// aliasing internal state to callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Subscription = a.Subscription.clone()
	cp.UltimateSubscription = a.UltimateSubscription.clone()
	cp.RateLimits = make(map[string]*RateLimitState, len(a.RateLimits))
	for action, rl := range a.RateLimits {
		rlCopy := *rl
		cp.RateLimits[action] = &rlCopy
	}
	return &cp
}

func (s SubscriptionInfo) clone() SubscriptionInfo {
	cp := s
	if s.SubscriptionIDs != nil {
		cp.SubscriptionIDs = append([]string(nil), s.SubscriptionIDs...)
	}
	if s.InvoiceIDs != nil {
		cp.InvoiceIDs = append([]string(nil), s.InvoiceIDs...)
	}
	return cp
}

// CreditsInfo is the result of GetCredits.
type CreditsInfo struct {
	// IsInitialized reports whether the one-time grant has been applied.
	IsInitialized bool

	// Credits is the current consumable balance.
	Credits int

	// ShouldShowToast is true while the client still owes the user a
	// "you received N credits" notification for the initial grant.
	ShouldShowToast bool
}

// ActionStatus codes the reason an admission decision failed.
type ActionStatus string

const (
	// StatusInsufficientCredits means the credit gate failed.
	StatusInsufficientCredits ActionStatus = "insufficient_credits"
	// StatusRateLimitExceeded means the token bucket is empty.
	StatusRateLimitExceeded ActionStatus = "rate_limit_exceeded"
)

// ActionResult is the structured outcome of an admission decision.
// Policy rejections are results, never errors (the caller surfaces
// Message to the end user).
type ActionResult struct {
	Success bool         `json:"success"`
	Code    ActionStatus `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
}

// Allowed is shorthand for a successful decision.
func Allowed() *ActionResult {
	return &ActionResult{Success: true}
}

// Denied builds a coded rejection.
func Denied(code ActionStatus, message string) *ActionResult {
	return &ActionResult{Success: false, Code: code, Message: message}
}
