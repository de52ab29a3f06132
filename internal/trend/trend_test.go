package trend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/guardian-go/internal/health"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return now.Add(-time.Duration(d * float64(24*time.Hour)))
}

func TestAnalyzeBloodPressureScenario(t *testing.T) {
	readings := []health.BloodPressure{
		{Timestamp: daysAgo(3), Systolic: 150, Diastolic: 95, Pulse: 80},
		{Timestamp: daysAgo(2), Systolic: 145, Diastolic: 92, Pulse: 82},
		{Timestamp: daysAgo(1), Systolic: 148, Diastolic: 93, Pulse: 79},
	}

	findings := AnalyzeBloodPressure(readings, now)

	require.Len(t, findings, 1)
	assert.Equal(t, SeverityDanger, findings[0].Severity)
	assert.Equal(t, "Blood pressure high", findings[0].Title)
	assert.Contains(t, findings[0].Message, "147.7/93.3")
}

func TestAnalyzeBloodPressureMinimumSamples(t *testing.T) {
	two := []health.BloodPressure{
		{Timestamp: daysAgo(1), Systolic: 190, Diastolic: 120},
		{Timestamp: daysAgo(2), Systolic: 185, Diastolic: 115},
	}
	assert.Empty(t, AnalyzeBloodPressure(two, now))

	three := append(two, health.BloodPressure{Timestamp: daysAgo(3), Systolic: 180, Diastolic: 110})
	findings := AnalyzeBloodPressure(three, now)
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityDanger, findings[0].Severity)
}

func TestAnalyzeBloodPressureThresholds(t *testing.T) {
	tests := []struct {
		name      string
		systolic  int
		diastolic int
		expected  Severity
	}{
		{"normal", 118, 76, ""},
		{"warning by systolic", 132, 70, SeverityWarning},
		{"warning by diastolic", 120, 82, SeverityWarning},
		{"danger by systolic", 140, 70, SeverityDanger},
		{"danger by diastolic", 125, 90, SeverityDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readings []health.BloodPressure
			for i := 0; i < 3; i++ {
				readings = append(readings, health.BloodPressure{
					Timestamp: daysAgo(float64(i)),
					Systolic:  tt.systolic,
					Diastolic: tt.diastolic,
				})
			}
			findings := AnalyzeBloodPressure(readings, now)
			if tt.expected == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			assert.Equal(t, tt.expected, findings[0].Severity)
		})
	}
}

func TestAnalyzeBloodPressureWindow(t *testing.T) {
	readings := []health.BloodPressure{
		{Timestamp: now.Add(-Window), Systolic: 150, Diastolic: 95},               // inclusive bound
		{Timestamp: now.Add(-Window - time.Second), Systolic: 150, Diastolic: 95}, // outside
		{Timestamp: daysAgo(1), Systolic: 150, Diastolic: 95},
		{Timestamp: daysAgo(0.5), Systolic: 150, Diastolic: 95},
	}

	findings := AnalyzeBloodPressure(readings, now)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "over 3 readings")

	assert.Empty(t, AnalyzeBloodPressure(readings[1:2], now))
}

func TestAnalyzeGlucoseFasting(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected Severity
	}{
		{"single reading is enough", []float64{130}, SeverityDanger},
		{"danger at 126", []float64{120, 132}, SeverityDanger},
		{"warning at 100", []float64{100}, SeverityWarning},
		{"warning below 126", []float64{110, 125}, SeverityWarning},
		{"nothing below 100", []float64{95, 99}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readings []health.Glucose
			for i, v := range tt.values {
				readings = append(readings, health.Glucose{
					Timestamp: daysAgo(float64(i)),
					Value:     v,
					Timing:    health.TimingFasting,
				})
			}
			findings := AnalyzeGlucose(readings, now)
			if tt.expected == "" {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			assert.Equal(t, tt.expected, findings[0].Severity)
		})
	}
}

func TestAnalyzeGlucoseCoexistingFindings(t *testing.T) {
	readings := []health.Glucose{
		{Timestamp: daysAgo(1), Value: 110, Timing: health.TimingFasting},
		{Timestamp: daysAgo(1), Value: 210, Timing: health.TimingPostPrandial},
		{Timestamp: daysAgo(2), Value: 230, Timing: health.TimingBeforeSleep},
		{Timestamp: daysAgo(10), Value: 400, Timing: health.TimingFasting}, // outside window
	}

	findings := AnalyzeGlucose(readings, now)

	require.Len(t, findings, 2)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "Fasting glucose elevated", findings[0].Title)
	assert.Equal(t, SeverityDanger, findings[1].Severity)
	assert.Equal(t, "Non-fasting glucose too high", findings[1].Title)
}

func TestAnalyzeGlucoseEmptyWindow(t *testing.T) {
	readings := []health.Glucose{
		{Timestamp: daysAgo(30), Value: 300, Timing: health.TimingFasting},
	}
	assert.Empty(t, AnalyzeGlucose(readings, now))
	assert.Empty(t, AnalyzeGlucose(nil, now))
}

func TestAnalyzeMixed(t *testing.T) {
	readings := []health.Reading{
		health.Glucose{Timestamp: daysAgo(1), Value: 140, Timing: health.TimingFasting},
		health.BloodPressure{Timestamp: daysAgo(1), Systolic: 150, Diastolic: 95},
	}

	findings := Analyze(readings, now)
	require.Len(t, findings, 1)
	assert.Equal(t, "Fasting glucose too high", findings[0].Title)
}

func TestConclusion(t *testing.T) {
	assert.Equal(t, StableConclusion, Conclusion(nil))

	findings := []Finding{
		{Severity: SeverityDanger, Title: "Blood pressure high", Message: "average 147.7/93.3 mmHg over 3 readings"},
		{Severity: SeverityWarning, Title: "Fasting glucose elevated", Message: "average 110.0 mg/dL over 1 fasting readings"},
	}

	assert.Equal(t,
		"[DANGER] Blood pressure high (average 147.7/93.3 mmHg over 3 readings); "+
			"[WARNING] Fasting glucose elevated (average 110.0 mg/dL over 1 fasting readings)",
		Conclusion(findings))
}
