package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

// Metrics implements admit.Metrics using Prometheus.
type Metrics struct {
	admissionsTotal    *prometheus.CounterVec
	creditsGranted     *prometheus.CounterVec
	creditsDebited     *prometheus.CounterVec
	subscriptionEvents *prometheus.CounterVec
	storeOpsDuration   *prometheus.HistogramVec
	storeOpsErrors     *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admissions_total",
			Help:      "Total number of admission decisions.",
		}, []string{"action", "tier", "allowed", "code"}),

		creditsGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_granted_total",
			Help:      "Total credits granted, by source.",
		}, []string{"source"}),

		creditsDebited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Total credits debited for admitted actions.",
		}, []string{"action"}),

		subscriptionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_events_total",
			Help:      "Total subscription lifecycle events.",
		}, []string{"event", "plan"}),

		storeOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Latency of account store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storeOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of account store operation errors.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordAdmission(actionType, tier string, allowed bool, code admit.ActionStatus) {
	m.admissionsTotal.WithLabelValues(actionType, tier,
		strconv.FormatBool(allowed), string(code)).Inc()
}

func (m *Metrics) RecordCreditsGranted(source string, amount int) {
	m.creditsGranted.WithLabelValues(source).Add(float64(amount))
}

func (m *Metrics) RecordCreditsDebited(actionType string, amount int) {
	m.creditsDebited.WithLabelValues(actionType).Add(float64(amount))
}

func (m *Metrics) RecordSubscriptionEvent(event string, plan admit.PlanType) {
	m.subscriptionEvents.WithLabelValues(event, string(plan)).Inc()
}

func (m *Metrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	m.storeOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storeOpsErrors.WithLabelValues(operation).Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
