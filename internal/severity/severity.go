// Package severity classifies single readings into clinical range tiers.
package severity

import "github.com/jwulff/guardian-go/internal/health"

// Tier represents the range classification of one reading.
type Tier string

const (
	TierLow      Tier = "low"
	TierNormal   Tier = "normal"
	TierElevated Tier = "elevated"
	TierHigh     Tier = "high"
	TierCritical Tier = "critical"
)

// Blood pressure thresholds in mmHg.
const (
	SystolicLow      = 90
	DiastolicLow     = 60
	SystolicHigh     = 140
	DiastolicHigh    = 90
	SystolicStage1   = 130
	DiastolicStage1  = 80
	SystolicElevated = 120
)

// Glucose thresholds in mg/dL.
const (
	GlucoseLow = 70

	FastingCritical = 126
	FastingElevated = 100

	PostPrandialCritical = 200
	PostPrandialElevated = 140

	OtherCritical = 200
	OtherElevated = 180
)

// ClassifyBloodPressure determines the tier for a blood pressure pair.
// Values are evaluated as given; callers normalize inverted pairs upstream.
// Rules are evaluated in order and the first match wins.
func ClassifyBloodPressure(systolic, diastolic int) Tier {
	if systolic < SystolicLow || diastolic < DiastolicLow {
		return TierLow
	}
	if systolic >= SystolicHigh || diastolic >= DiastolicHigh {
		return TierHigh
	}
	if systolic >= SystolicStage1 || diastolic >= DiastolicStage1 {
		return TierElevated
	}
	if systolic >= SystolicElevated {
		return TierElevated
	}
	return TierNormal
}

// GlucoseThresholds returns the critical and elevated cut-offs for a timing.
func GlucoseThresholds(timing health.Timing) (critical, elevated float64) {
	switch timing {
	case health.TimingFasting:
		return FastingCritical, FastingElevated
	case health.TimingPostPrandial:
		return PostPrandialCritical, PostPrandialElevated
	default:
		return OtherCritical, OtherElevated
	}
}

// ClassifyGlucose determines the tier for a glucose value in mg/dL.
func ClassifyGlucose(value float64, timing health.Timing) Tier {
	if value < GlucoseLow {
		return TierLow
	}
	critical, elevated := GlucoseThresholds(timing)
	if value >= critical {
		return TierCritical
	}
	if value >= elevated {
		return TierElevated
	}
	return TierNormal
}

// Classify determines the tier for any reading.
func Classify(r health.Reading) Tier {
	switch v := r.(type) {
	case health.BloodPressure:
		return ClassifyBloodPressure(v.Systolic, v.Diastolic)
	case health.Glucose:
		return ClassifyGlucose(v.Value, v.Timing)
	default:
		panic(health.UnknownReadingError{Reading: r})
	}
}
