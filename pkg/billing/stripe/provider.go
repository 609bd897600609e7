// Package stripe implements the billing.Provider interface on top of
// Stripe webhooks. Subscription lifecycle events are translated into
// plan updates on the admission engine.
package stripe

import (
	"net/http"
	"strings"
	"time"

	"github.com/mihaimyh/goadmit/pkg/admit"
	"github.com/mihaimyh/goadmit/pkg/billing"
)

const (
	providerName    = "stripe"
	maxWebhookBytes = 256 * 1024

	subscriptionStatusActive   = "active"
	subscriptionStatusTrialing = "trialing"
)

// PlanResolver maps a Stripe price or product identifier to a plan.
type PlanResolver func(priceID, productID string) admit.PlanType

// Config holds Stripe provider configuration
type Config struct {
	// Engine is the admission engine to drive (required)
	Engine *admit.Engine

	// WebhookSecret is the Stripe webhook signing secret (required)
	WebhookSecret string

	// ResolvePlan maps Stripe identifiers to plans (optional)
	// If nil, the plan is inferred from the identifier's naming
	// convention ("weekly", "monthly", "yearly", "ultimate")
	ResolvePlan PlanResolver

	// OnEvent receives normalized events after the engine was updated (optional)
	OnEvent billing.EventCallback

	// Logger is optional; if nil, nothing is logged
	Logger admit.Logger
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	engine        *admit.Engine
	webhookSecret []byte
	resolvePlan   PlanResolver
	onEvent       billing.EventCallback
	logger        admit.Logger
	now           func() time.Time
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Engine == nil {
		return nil, billing.ErrProviderNotConfigured
	}
	secret := strings.TrimSpace(config.WebhookSecret)
	if secret == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	resolve := config.ResolvePlan
	if resolve == nil {
		resolve = func(priceID, productID string) admit.PlanType {
			if productID != "" {
				return admit.PlanTypeFromProductID(productID)
			}
			return admit.PlanTypeFromProductID(priceID)
		}
	}
	logger := config.Logger
	if logger == nil {
		logger = &admit.NoopLogger{}
	}

	return &Provider{
		engine:        config.Engine,
		webhookSecret: []byte(secret),
		resolvePlan:   resolve,
		onEvent:       config.OnEvent,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name implements billing.Provider
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler implements billing.Provider
func (p *Provider) WebhookHandler() http.Handler {
	return http.HandlerFunc(p.handleWebhook)
}
