package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goadmit/pkg/admit"
	"github.com/mihaimyh/goadmit/pkg/billing"
	"github.com/mihaimyh/goadmit/pkg/billing/internal"
)

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		p.logger.Error("webhook processing failed",
			admit.Field{Key: "eventType", Value: string(event.Type)},
			admit.Field{Key: "error", Value: err})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return p.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	default:
		// Unknown event type - ignore silently
		return nil
	}
}

// handleSubscriptionChanged activates or renews the plan carried by a
// subscription event. Inactive subscription states are ignored; the
// deleted event handles teardown.
func (p *Provider) handleSubscriptionChanged(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	userID, err := userIDFromSubscription(&sub)
	if err != nil {
		return err
	}

	if status := string(sub.Status); status != subscriptionStatusActive && status != subscriptionStatusTrialing {
		p.logger.Debug("ignoring subscription in inactive state",
			admit.Field{Key: "userId", Value: userID},
			admit.Field{Key: "status", Value: status})
		return nil
	}

	plan := p.planFromSubscription(&sub)
	endDate, err := admit.SubscriptionEndDate(plan, p.now())
	if err != nil {
		return fmt.Errorf("failed to compute end date for plan %q: %w", plan, err)
	}
	if err := p.engine.UpdateSubscriptionPlan(ctx, userID, string(plan), endDate); err != nil {
		return err
	}

	p.emit(ctx, event, userID, plan)
	return nil
}

func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	userID, err := userIDFromSubscription(&sub)
	if err != nil {
		return err
	}
	if err := p.engine.CancelSubscription(ctx, userID); err != nil {
		return err
	}

	p.emit(ctx, event, userID, admit.PlanNone)
	return nil
}

// handleInvoicePaymentSucceeded treats a paid subscription invoice as a
// renewal: the user's current plan gets a fresh window starting at the
// event. The subscription metadata rides along on the invoice, so no
// API fetch is needed.
func (p *Provider) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	userID := userIDFromInvoice(event.Data.Raw)
	if userID == "" {
		// Not a subscription invoice, or metadata was not propagated.
		return nil
	}

	for _, ultimate := range []bool{false, true} {
		sub, err := p.engine.GetSubscription(ctx, userID, ultimate)
		if err != nil {
			return err
		}
		if !sub.IsActive || sub.PlanType == admit.PlanNone {
			continue
		}
		endDate, err := admit.SubscriptionEndDate(sub.PlanType, p.now())
		if err != nil {
			return fmt.Errorf("failed to compute end date for plan %q: %w", sub.PlanType, err)
		}
		if err := p.engine.UpdateSubscriptionPlan(ctx, userID, string(sub.PlanType), endDate); err != nil {
			return err
		}
		p.emit(ctx, event, userID, sub.PlanType)
	}
	return nil
}

// handleInvoicePaymentFailed logs the failure and nothing else. Stripe
// retries failed invoices; teardown arrives as subscription.deleted.
func (p *Provider) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	userID := userIDFromInvoice(event.Data.Raw)
	if userID == "" {
		return nil
	}
	p.logger.Warn("invoice payment failed",
		admit.Field{Key: "userId", Value: userID})
	p.emit(ctx, event, userID, admit.PlanNone)
	return nil
}

// userIDFromInvoice digs user_id out of the invoice's subscription
// metadata. The location moved across API versions, so both the legacy
// subscription_details path and the newer parent path are checked.
func userIDFromInvoice(raw json.RawMessage) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	for _, details := range []interface{}{
		doc["subscription_details"],
		dig(doc, "parent", "subscription_details"),
	} {
		if userID, ok := dig(details, "metadata", "user_id").(string); ok && userID != "" {
			return userID
		}
	}
	return ""
}

func dig(v interface{}, keys ...string) interface{} {
	for _, key := range keys {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

// handleCheckoutSessionCompleted covers one-off checkouts that carry
// the product in session metadata rather than a subscription object.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		return billing.ErrUserNotResolved
	}
	productID := session.Metadata["product_id"]
	if productID == "" {
		// Subscription checkouts are handled by the subscription events.
		return nil
	}

	plan := p.resolvePlan("", productID)
	endDate, err := admit.SubscriptionEndDate(plan, p.now())
	if err != nil {
		return fmt.Errorf("failed to compute end date for plan %q: %w", plan, err)
	}
	if err := p.engine.UpdateSubscriptionPlan(ctx, userID, string(plan), endDate); err != nil {
		return err
	}

	p.emit(ctx, event, userID, plan)
	return nil
}

func (p *Provider) planFromSubscription(sub *stripe.Subscription) admit.PlanType {
	var priceID, productID string
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			priceID = item.Price.ID
			if item.Price.Product != nil {
				productID = item.Price.Product.ID
			}
		}
	}
	return p.resolvePlan(priceID, productID)
}

func userIDFromSubscription(sub *stripe.Subscription) (string, error) {
	if sub.Metadata != nil {
		if userID := sub.Metadata["user_id"]; userID != "" {
			return userID, nil
		}
	}
	return "", billing.ErrUserNotResolved
}

func (p *Provider) emit(ctx context.Context, event *stripe.Event, userID string, plan admit.PlanType) {
	if p.onEvent == nil {
		return
	}
	p.onEvent(ctx, billing.WebhookEvent{
		Provider:   providerName,
		Type:       string(event.Type),
		UserID:     userID,
		Plan:       plan,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	})
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "no-store")
}
