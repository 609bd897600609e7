package api

import "time"

// StatusResponse represents the complete admission standing for a user
type StatusResponse struct {
	UserID               string                `json:"user_id"`
	Credits              CreditsView           `json:"credits"`
	Subscription         SubscriptionView      `json:"subscription"`
	UltimateSubscription SubscriptionView      `json:"ultimate_subscription"`
	RateLimits           map[string]BucketView `json:"rate_limits,omitempty"`
}

// CreditsView represents the credit ledger state
type CreditsView struct {
	Initialized     bool `json:"initialized"`
	Balance         int  `json:"balance"`
	ShouldShowToast bool `json:"should_show_toast"`
}

// SubscriptionView represents a subscription record
type SubscriptionView struct {
	Active    bool       `json:"active"`
	Plan      string     `json:"plan"`
	PlanName  string     `json:"plan_name"`
	Status    string     `json:"status"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
}

// BucketView represents the current token bucket state for an action
type BucketView struct {
	Remaining      int       `json:"remaining"`
	LastRefillTime time.Time `json:"last_refill_time"`
}

// AdmitResponse is the body returned by the admission endpoint
type AdmitResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// GrantCreditsRequest is the body accepted by the credit grant endpoint
type GrantCreditsRequest struct {
	Amount int `json:"amount"`
}
