// Package api provides HTTP endpoints for admission inspection and
// explicit admission requests.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

const maxUserIDLen = 255

// Handler provides HTTP endpoints backed by an admission engine
type Handler struct {
	config Config
}

// GetStatus returns a standardized JSON response of the user's current
// admission standing. The credit ledger and both subscription records
// are fetched concurrently.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return
	}

	var (
		credits  *admit.CreditsInfo
		standard *admit.SubscriptionInfo
		ultimate *admit.SubscriptionInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		credits, err = h.config.Engine.GetCredits(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		standard, err = h.config.Engine.GetSubscription(gctx, userID, false)
		return err
	})
	g.Go(func() error {
		var err error
		ultimate, err = h.config.Engine.GetSubscription(gctx, userID, true)
		return err
	})
	if err := g.Wait(); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to load account: %w", err),
			http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		UserID: userID,
		Credits: CreditsView{
			Initialized:     credits.IsInitialized,
			Balance:         credits.Credits,
			ShouldShowToast: credits.ShouldShowToast,
		},
		Subscription:         subscriptionView(standard),
		UltimateSubscription: subscriptionView(ultimate),
	}

	// Bucket levels come straight from the store; they are a snapshot,
	// not an admission decision.
	if h.config.Store != nil {
		acct, err := h.config.Store.Load(ctx, userID)
		if err != nil {
			h.config.Logger.Warn("failed to load rate limits",
				admit.Field{Key: "userId", Value: userID}, admit.Field{Key: "error", Value: err})
		} else if acct != nil {
			response.RateLimits = make(map[string]BucketView, len(acct.RateLimits))
			for action, bucket := range acct.RateLimits {
				response.RateLimits[action] = BucketView{
					Remaining:      bucket.Count,
					LastRefillTime: bucket.LastRefillTime,
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// Admit consumes one admission for the requested action. A policy
// rejection is returned with the matching status code; it is not an
// internal error.
func (h *Handler) Admit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = admit.ActionConversation
	}
	sessionID := r.Header.Get("X-Session-ID")

	result, err := h.config.Engine.ExecuteAction(ctx, userID, sessionID, action)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("admission failed: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, admissionStatusCode(result), AdmitResponse{
		Success: result.Success,
		Code:    string(result.Code),
		Message: result.Message,
	})
}

// Check evaluates the gates without consuming anything.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = admit.ActionConversation
	}

	result, err := h.config.Engine.IsActionAllowed(ctx, userID, action)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("admission check failed: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, admissionStatusCode(result), AdmitResponse{
		Success: result.Success,
		Code:    string(result.Code),
		Message: result.Message,
	})
}

// AcknowledgeToast marks the initial-credits notification as shown.
func (h *Handler) AcknowledgeToast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	if err := h.config.Engine.SetShownCreditsToast(ctx, userID, true); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to acknowledge toast: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GrantCredits adds credits to the user's balance. The body is
// {"amount": n}; non-positive amounts are rejected.
func (h *Handler) GrantCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	var req GrantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, r, fmt.Errorf("invalid request body: %w", err),
			http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		h.handleError(w, r, fmt.Errorf("amount must be positive"),
			http.StatusBadRequest)
		return
	}

	if err := h.config.Engine.AddCredits(ctx, userID, req.Amount); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to grant credits: %w", err),
			http.StatusInternalServerError)
		return
	}

	credits, err := h.config.Engine.GetCredits(ctx, userID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to load credits: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, CreditsView{
		Initialized:     credits.IsInitialized,
		Balance:         credits.Credits,
		ShouldShowToast: credits.ShouldShowToast,
	})
}

// ResetRateLimits clears the bucket for the requested action so the
// next admission starts from a full window.
func (h *Handler) ResetRateLimits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	action := r.URL.Query().Get("action")
	if action == "" {
		action = admit.ActionConversation
	}

	if err := h.config.Engine.ResetRateLimits(ctx, userID, action); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to reset rate limits: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ClearAccount resets the user's account to a pristine state.
func (h *Handler) ClearAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return
	}

	if err := h.config.Engine.ClearAll(ctx, userID); err != nil {
		h.handleError(w, r, fmt.Errorf("failed to clear account: %w", err),
			http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func admissionStatusCode(result *admit.ActionResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Code {
	case admit.StatusRateLimitExceeded:
		return http.StatusTooManyRequests
	case admit.StatusInsufficientCredits:
		return http.StatusPaymentRequired
	default:
		return http.StatusForbidden
	}
}

func subscriptionView(sub *admit.SubscriptionInfo) SubscriptionView {
	view := SubscriptionView{
		Active:   sub.IsActive,
		Plan:     string(sub.PlanType),
		PlanName: admit.PlanDisplayName(sub.PlanType),
		Status:   string(sub.Status),
	}
	if !sub.StartDate.IsZero() {
		start := sub.StartDate
		view.StartDate = &start
	}
	if !sub.EndDate.IsZero() {
		end := sub.EndDate
		view.EndDate = &end
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}
	h.config.Logger.Error("api request failed",
		admit.Field{Key: "path", Value: r.URL.Path},
		admit.Field{Key: "error", Value: err},
		admit.Field{Key: "status", Value: status})
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
