// Package health defines the records kept by the health log: patient identity,
// blood pressure and glucose readings, and medication events.
package health

import (
	"fmt"
	"time"
)

// Kind identifies which variant of Reading a value is.
type Kind string

const (
	KindBloodPressure Kind = "bp"
	KindGlucose       Kind = "glucose"
)

// ParseKind converts a wire or CLI value to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "bp", "blood-pressure":
		return KindBloodPressure, nil
	case "glucose", "bs", "bg":
		return KindGlucose, nil
	}
	return "", fmt.Errorf("unknown reading kind %q", s)
}

// Title returns the human-readable report name for the kind.
func (k Kind) Title() string {
	switch k {
	case KindBloodPressure:
		return "Blood Pressure"
	case KindGlucose:
		return "Blood Glucose"
	}
	return string(k)
}

// Timing is the meal-relative context of a glucose reading.
type Timing string

const (
	TimingFasting      Timing = "fasting"
	TimingBeforeMeal   Timing = "before-meal"
	TimingPostPrandial Timing = "post-prandial"
	TimingBeforeSleep  Timing = "before-sleep"
	TimingOther        Timing = "other"
)

var timingLabels = map[Timing]string{
	TimingFasting:      "fasting",
	TimingBeforeMeal:   "before meal",
	TimingPostPrandial: "after meal",
	TimingBeforeSleep:  "before sleep",
	TimingOther:        "other",
}

// ParseTiming maps a wire value to a Timing. Unknown values become TimingOther.
func ParseTiming(s string) Timing {
	t := Timing(s)
	if _, ok := timingLabels[t]; ok {
		return t
	}
	return TimingOther
}

// Label returns the display text for the timing.
func (t Timing) Label() string {
	if l, ok := timingLabels[t]; ok {
		return l
	}
	return string(t)
}

// Reading is a single blood pressure or glucose measurement.
// The set of implementations is closed: BloodPressure and Glucose.
type Reading interface {
	Kind() Kind
	Time() time.Time
	Medicated() bool
	isReading()
}

// BloodPressure is a cuff measurement in mmHg with pulse in beats per minute.
type BloodPressure struct {
	Timestamp       time.Time
	Systolic        int
	Diastolic       int
	Pulse           int
	MedicationTaken bool
}

func (BloodPressure) Kind() Kind        { return KindBloodPressure }
func (r BloodPressure) Time() time.Time { return r.Timestamp }
func (r BloodPressure) Medicated() bool { return r.MedicationTaken }
func (BloodPressure) isReading()        {}

// Normalized returns the reading with systolic >= diastolic.
func (r BloodPressure) Normalized() BloodPressure {
	if r.Systolic < r.Diastolic {
		r.Systolic, r.Diastolic = r.Diastolic, r.Systolic
	}
	return r
}

// Glucose is a blood glucose measurement in mg/dL.
type Glucose struct {
	Timestamp       time.Time
	Value           float64
	Timing          Timing
	MedicationTaken bool
}

func (Glucose) Kind() Kind        { return KindGlucose }
func (r Glucose) Time() time.Time { return r.Timestamp }
func (r Glucose) Medicated() bool { return r.MedicationTaken }
func (Glucose) isReading()        {}

// UnknownReadingError is raised when a Reading is neither variant.
// Reaching it means a new variant was added without updating a switch.
type UnknownReadingError struct {
	Reading Reading
}

func (e UnknownReadingError) Error() string {
	return fmt.Sprintf("unknown reading variant %T", e.Reading)
}

// SplitBloodPressure returns the blood pressure readings in rs.
func SplitBloodPressure(rs []Reading) []BloodPressure {
	var out []BloodPressure
	for _, r := range rs {
		if bp, ok := r.(BloodPressure); ok {
			out = append(out, bp)
		}
	}
	return out
}

// SplitGlucose returns the glucose readings in rs.
func SplitGlucose(rs []Reading) []Glucose {
	var out []Glucose
	for _, r := range rs {
		if g, ok := r.(Glucose); ok {
			out = append(out, g)
		}
	}
	return out
}
