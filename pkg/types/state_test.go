package types_test

import (
	"testing"

	"github.com/scrypster/notouch/pkg/types"
)

func TestValidRearmPolicies(t *testing.T) {
	for _, p := range []types.RearmPolicy{"on-action-complete", "on-condition-clear", "both"} {
		if !types.IsValidRearmPolicy(p) {
			t.Errorf("Expected %s to be a valid re-arm policy", p)
		}
	}
}

func TestInvalidRearmPolicies(t *testing.T) {
	for _, p := range []types.RearmPolicy{"", "never", "on-complete"} {
		if types.IsValidRearmPolicy(p) {
			t.Errorf("Expected %q to be an invalid re-arm policy", p)
		}
	}
}

func TestAlertTransitions(t *testing.T) {
	tests := []struct {
		from, to types.AlertState
		valid    bool
	}{
		{types.AlertArmed, types.AlertCoolingDown, true},
		{types.AlertCoolingDown, types.AlertArmed, true},
		{types.AlertArmed, types.AlertArmed, false},
		{types.AlertCoolingDown, types.AlertCoolingDown, false},
		{"", types.AlertArmed, false},
	}

	for _, tt := range tests {
		if got := types.IsValidAlertTransition(tt.from, tt.to); got != tt.valid {
			t.Errorf("IsValidAlertTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestDistanceMetrics(t *testing.T) {
	if !types.IsValidDistanceMetric(types.MetricEuclidean) || !types.IsValidDistanceMetric(types.MetricCosine) {
		t.Error("euclidean and cosine must be valid metrics")
	}
	if types.IsValidDistanceMetric("manhattan") {
		t.Error("manhattan should not be a valid metric")
	}
}
