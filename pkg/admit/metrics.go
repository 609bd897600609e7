package admit

import "time"

// Metrics defines the interface for tracking admission decisions and
// engine operations.
type Metrics interface {
	// RecordAdmission records an admission decision for an action type.
	// code is empty for allowed decisions.
	RecordAdmission(actionType, tier string, allowed bool, code ActionStatus)

	// RecordCreditsGranted records credits added to an account
	// (initial grant, rewards, admin adjustments).
	RecordCreditsGranted(source string, amount int)

	// RecordCreditsDebited records credits consumed by a billed action.
	RecordCreditsDebited(actionType string, amount int)

	// RecordSubscriptionEvent records a subscription lifecycle
	// transition (e.g. "activated", "expired", "cancelled").
	RecordSubscriptionEvent(event string, plan PlanType)

	// RecordStoreOperation records the duration and status of a store
	// operation.
	RecordStoreOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordAdmission(actionType, tier string, allowed bool, code ActionStatus) {}
func (n *NoopMetrics) RecordCreditsGranted(source string, amount int)                           {}
func (n *NoopMetrics) RecordCreditsDebited(actionType string, amount int)                       {}
func (n *NoopMetrics) RecordSubscriptionEvent(event string, plan PlanType)                      {}
func (n *NoopMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {}
