package severity

import (
	"testing"
	"time"

	"github.com/jwulff/guardian-go/internal/health"
)

func TestClassifyBloodPressure(t *testing.T) {
	tests := []struct {
		systolic  int
		diastolic int
		expected  Tier
	}{
		{85, 100, TierLow}, // low wins over high diastolic
		{89, 70, TierLow},
		{110, 59, TierLow},
		{90, 60, TierNormal},
		{119, 79, TierNormal},
		{120, 60, TierElevated},
		{129, 79, TierElevated},
		{125, 80, TierElevated},
		{130, 70, TierElevated},
		{139, 89, TierElevated},
		{140, 89, TierHigh},
		{135, 90, TierHigh},
		{180, 110, TierHigh},
		{80, 120, TierLow}, // evaluated as given
		{100, 150, TierHigh},
	}

	for _, tt := range tests {
		result := ClassifyBloodPressure(tt.systolic, tt.diastolic)
		if result != tt.expected {
			t.Errorf("ClassifyBloodPressure(%d, %d) = %s, want %s", tt.systolic, tt.diastolic, result, tt.expected)
		}
	}
}

func TestClassifyGlucose(t *testing.T) {
	tests := []struct {
		value    float64
		timing   health.Timing
		expected Tier
	}{
		{65, health.TimingFasting, TierLow},
		{65, health.TimingPostPrandial, TierLow},
		{69.9, health.TimingOther, TierLow},
		{70, health.TimingFasting, TierNormal},
		{99, health.TimingFasting, TierNormal},
		{100, health.TimingFasting, TierElevated},
		{125, health.TimingFasting, TierElevated},
		{126, health.TimingFasting, TierCritical},
		{139, health.TimingPostPrandial, TierNormal},
		{140, health.TimingPostPrandial, TierElevated},
		{199, health.TimingPostPrandial, TierElevated},
		{200, health.TimingPostPrandial, TierCritical},
		{179, health.TimingBeforeMeal, TierNormal},
		{180, health.TimingBeforeSleep, TierElevated},
		{200, health.TimingOther, TierCritical},
	}

	for _, tt := range tests {
		result := ClassifyGlucose(tt.value, tt.timing)
		if result != tt.expected {
			t.Errorf("ClassifyGlucose(%v, %s) = %s, want %s", tt.value, tt.timing, result, tt.expected)
		}
	}
}

func TestClassifyReading(t *testing.T) {
	ts := time.Now()

	if got := Classify(health.BloodPressure{Timestamp: ts, Systolic: 150, Diastolic: 95}); got != TierHigh {
		t.Errorf("Classify(bp) = %s, want high", got)
	}
	if got := Classify(health.Glucose{Timestamp: ts, Value: 130, Timing: health.TimingFasting}); got != TierCritical {
		t.Errorf("Classify(glucose) = %s, want critical", got)
	}
}

func TestPresentation(t *testing.T) {
	tests := []struct {
		tier  Tier
		label string
		class string
	}{
		{TierLow, "low", "primary"},
		{TierNormal, "normal", "normal"},
		{TierElevated, "elevated", "warning"},
		{TierHigh, "high", "danger"},
		{TierCritical, "too high", "danger"},
	}

	for _, tt := range tests {
		p := tt.tier.Presentation()
		if p.Label != tt.label || p.Class != tt.class {
			t.Errorf("%s.Presentation() = %+v, want label %q class %q", tt.tier, p, tt.label, tt.class)
		}
		if p.Icon == "" {
			t.Errorf("%s.Presentation() has no icon", tt.tier)
		}
	}
}
