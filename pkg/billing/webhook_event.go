package billing

import (
	"context"
	"time"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// WebhookEvent is the normalized form of a provider event, delivered to
// the optional OnEvent callback after the engine has been updated.
type WebhookEvent struct {
	// Provider is the originating backend ("stripe")
	Provider string

	// Type is the provider's raw event type
	Type string

	// UserID is the resolved account the event applies to
	UserID string

	// Plan is the plan the event resolved to, if any
	Plan admit.PlanType

	// OccurredAt is the provider-reported event timestamp
	OccurredAt time.Time
}

// EventCallback receives normalized webhook events. Callbacks run on
// the webhook request path; they should be fast and must not block.
type EventCallback func(ctx context.Context, event WebhookEvent)
