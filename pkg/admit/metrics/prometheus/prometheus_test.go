package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mihaimyh/goadmit/pkg/admit"
)

func TestPrometheusMetrics_NewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPrometheusMetrics_RecordAdmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordAdmission("conversation", "free", true, "")
	metrics.RecordAdmission("conversation", "free", false, admit.StatusRateLimitExceeded)
	metrics.RecordAdmission("conversation", "ultimate", true, "")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var admissions *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_admissions_total" {
			admissions = mf
		}
	}
	if admissions == nil {
		t.Fatal("admissions_total not registered")
	}
	if len(admissions.GetMetric()) != 3 {
		t.Errorf("expected 3 label combinations, got %d", len(admissions.GetMetric()))
	}
}

func TestPrometheusMetrics_RecordCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordCreditsGranted("initial", 320)
	metrics.RecordCreditsDebited("conversation", 10)
	metrics.RecordCreditsDebited("conversation", 10)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	for _, mf := range families {
		switch mf.GetName() {
		case "test_credits_granted_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 320 {
				t.Errorf("granted = %v, want 320", got)
			}
		case "test_credits_debited_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 20 {
				t.Errorf("debited = %v, want 20", got)
			}
		}
	}
}

func TestPrometheusMetrics_RecordSubscriptionEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordSubscriptionEvent("activated", admit.PlanMonth)
	metrics.RecordSubscriptionEvent("expired", admit.PlanMonth)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected subscription event metrics to be recorded")
	}
}

func TestPrometheusMetrics_RecordStoreOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordStoreOperation("load", 10*time.Millisecond, nil)
	metrics.RecordStoreOperation("save", 20*time.Millisecond, errors.New("store error"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var errorsTotal *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "test_store_operation_errors_total" {
			errorsTotal = mf
		}
	}
	if errorsTotal == nil {
		t.Fatal("store_operation_errors_total not registered")
	}
	if got := errorsTotal.GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestDefaultMetrics(t *testing.T) {
	// The default registerer is global; use a unique namespace so the
	// test can run alongside others.
	metrics := DefaultMetrics("goadmit_default_test")
	if metrics == nil {
		t.Fatal("DefaultMetrics returned nil")
	}
}
