// Package trend turns a window of recent readings into advisory findings.
package trend

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/severity"
)

// Window is the trailing lookback used for averages.
const Window = 7 * 24 * time.Hour

// MinBloodPressureSamples is the fewest windowed readings that produce a
// blood pressure finding. Glucose has no minimum.
const MinBloodPressureSamples = 3

// StableConclusion is the conclusion text when there are no findings.
const StableConclusion = "stable"

// Severity is the urgency of a finding.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Finding is an advisory statement derived from several readings.
type Finding struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Marker returns the bracketed tag used in conclusions, e.g. "[DANGER]".
func (f Finding) Marker() string {
	return "[" + strings.ToUpper(string(f.Severity)) + "]"
}

// String formats the finding as it appears in a conclusion.
func (f Finding) String() string {
	return fmt.Sprintf("%s %s (%s)", f.Marker(), f.Title, f.Message)
}

// inWindow reports whether t falls in the trailing window ending at now.
// The lower bound is inclusive. Readings after now are kept.
func inWindow(t, now time.Time) bool {
	return !t.Before(now.Add(-Window))
}

// AnalyzeGlucose averages windowed glucose readings per timing partition.
func AnalyzeGlucose(readings []health.Glucose, now time.Time) []Finding {
	recent := lo.Filter(readings, func(r health.Glucose, _ int) bool {
		return inWindow(r.Timestamp, now)
	})
	if len(recent) == 0 {
		return nil
	}

	fasting := lo.Filter(recent, func(r health.Glucose, _ int) bool {
		return r.Timing == health.TimingFasting
	})
	others := lo.Filter(recent, func(r health.Glucose, _ int) bool {
		return r.Timing != health.TimingFasting
	})

	var findings []Finding
	if len(fasting) > 0 {
		avg := meanGlucose(fasting)
		msg := fmt.Sprintf("average %.1f mg/dL over %d fasting readings", avg, len(fasting))
		switch {
		case avg >= severity.FastingCritical:
			findings = append(findings, Finding{Severity: SeverityDanger, Title: "Fasting glucose too high", Message: msg})
		case avg >= severity.FastingElevated:
			findings = append(findings, Finding{Severity: SeverityWarning, Title: "Fasting glucose elevated", Message: msg})
		}
	}
	if len(others) > 0 {
		avg := meanGlucose(others)
		msg := fmt.Sprintf("average %.1f mg/dL over %d non-fasting readings", avg, len(others))
		switch {
		case avg >= severity.OtherCritical:
			findings = append(findings, Finding{Severity: SeverityDanger, Title: "Non-fasting glucose too high", Message: msg})
		case avg >= severity.OtherElevated:
			findings = append(findings, Finding{Severity: SeverityWarning, Title: "Non-fasting glucose elevated", Message: msg})
		}
	}
	return findings
}

func meanGlucose(rs []health.Glucose) float64 {
	sum := lo.SumBy(rs, func(r health.Glucose) float64 { return r.Value })
	return sum / float64(len(rs))
}

// AnalyzeBloodPressure averages windowed blood pressure readings.
// Fewer than MinBloodPressureSamples readings produce no finding.
func AnalyzeBloodPressure(readings []health.BloodPressure, now time.Time) []Finding {
	recent := lo.Filter(readings, func(r health.BloodPressure, _ int) bool {
		return inWindow(r.Timestamp, now)
	})
	if len(recent) < MinBloodPressureSamples {
		return nil
	}

	n := float64(len(recent))
	avgSys := float64(lo.SumBy(recent, func(r health.BloodPressure) int { return r.Systolic })) / n
	avgDia := float64(lo.SumBy(recent, func(r health.BloodPressure) int { return r.Diastolic })) / n
	msg := fmt.Sprintf("average %.1f/%.1f mmHg over %d readings", avgSys, avgDia, len(recent))

	switch {
	case avgSys >= severity.SystolicHigh || avgDia >= severity.DiastolicHigh:
		return []Finding{{Severity: SeverityDanger, Title: "Blood pressure high", Message: msg}}
	case avgSys >= severity.SystolicStage1 || avgDia >= severity.DiastolicStage1:
		return []Finding{{Severity: SeverityWarning, Title: "Blood pressure elevated", Message: msg}}
	}
	return nil
}

// Analyze dispatches each reading to the analyzer for its kind and returns
// the blood pressure findings followed by the glucose findings.
func Analyze(readings []health.Reading, now time.Time) []Finding {
	var bp []health.BloodPressure
	var bg []health.Glucose
	for _, r := range readings {
		switch v := r.(type) {
		case health.BloodPressure:
			bp = append(bp, v)
		case health.Glucose:
			bg = append(bg, v)
		default:
			panic(health.UnknownReadingError{Reading: r})
		}
	}
	return append(AnalyzeBloodPressure(bp, now), AnalyzeGlucose(bg, now)...)
}

// Conclusion joins findings into a single report line.
func Conclusion(findings []Finding) string {
	if len(findings) == 0 {
		return StableConclusion
	}
	parts := lo.Map(findings, func(f Finding, _ int) string { return f.String() })
	return strings.Join(parts, "; ")
}
