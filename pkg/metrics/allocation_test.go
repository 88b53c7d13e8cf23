package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestAllocationMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewAllocationMetrics(reg)

	metrics.IncBidsScored("lead", 4)
	metrics.IncAssignments("lead")
	metrics.IncAttributionRun("completed")
	metrics.AddAttributionCents(10000)
	metrics.IncBonusRun(250000)
	metrics.IncRankPromotion("partner")
	metrics.ObserveScoringDuration(120 * time.Millisecond)
	metrics.ObserveAttributionDuration(75 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "allocation_bids_scored_total", "slot_type", "lead"); err != nil {
		t.Fatalf("fetch bids scored: %v", err)
	} else if got != 4 {
		t.Fatalf("expected bids_scored=4, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "allocation_assignments_total", "slot_type", "lead"); err != nil {
		t.Fatalf("fetch assignments: %v", err)
	} else if got != 1 {
		t.Fatalf("expected assignments=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "attribution_runs_total", "outcome", "completed"); err != nil {
		t.Fatalf("fetch attribution runs: %v", err)
	} else if got != 1 {
		t.Fatalf("expected attribution_runs=1, got %f", got)
	}

	if got, err := fetchPlainCounterValue(mfs, "treasury_bonus_distributed_cents_total"); err != nil {
		t.Fatalf("fetch bonus distributed: %v", err)
	} else if got != 250000 {
		t.Fatalf("expected bonus_distributed=250000, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "allocation_scoring_duration_seconds"); err != nil {
		t.Fatalf("fetch scoring duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected scoring duration sum > 0, got %f", got)
	}
}

func TestAllocationMetricsNilSafe(t *testing.T) {
	var metrics *AllocationMetrics
	metrics.IncBidsScored("core", 1)
	metrics.IncBonusRun(100)
	metrics.ObserveAttributionDuration(time.Second)

	empty := NewAllocationMetrics(nil)
	empty.IncAssignments("pm")
	empty.IncRankPromotion("principal")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchPlainCounterValue(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("metric %q has no samples", name)
	}
	return mf.GetMetric()[0].GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	if len(mf.GetMetric()) == 0 {
		return 0, fmt.Errorf("histogram %q has no samples", name)
	}
	return mf.GetMetric()[0].GetHistogram().GetSampleSum(), nil
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
