package health

import (
	"errors"
	"math"
)

// ValidationError describes a record rejected at the input boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// IsValidationError checks if an error is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var v ValidationError
	return errors.As(err, &v)
}

// ValidateReading rejects readings that must never reach classification.
func ValidateReading(r Reading) error {
	if r.Time().IsZero() {
		return ValidationError{Field: "timestamp", Reason: "missing"}
	}

	switch v := r.(type) {
	case BloodPressure:
		if v.Systolic <= 0 {
			return ValidationError{Field: "systolic", Reason: "must be positive"}
		}
		if v.Diastolic <= 0 {
			return ValidationError{Field: "diastolic", Reason: "must be positive"}
		}
		if v.Pulse <= 0 {
			return ValidationError{Field: "pulse", Reason: "must be positive"}
		}
	case Glucose:
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return ValidationError{Field: "value", Reason: "not a number"}
		}
		if v.Value <= 0 {
			return ValidationError{Field: "value", Reason: "must be positive"}
		}
	default:
		panic(UnknownReadingError{Reading: r})
	}
	return nil
}

// Normalize returns r with any correctable inconsistency fixed.
func Normalize(r Reading) Reading {
	switch v := r.(type) {
	case BloodPressure:
		v = v.Normalized()
		v.Timestamp = v.Timestamp.UTC()
		return v
	case Glucose:
		v.Timestamp = v.Timestamp.UTC()
		if v.Timing == "" {
			v.Timing = TimingOther
		}
		return v
	default:
		panic(UnknownReadingError{Reading: r})
	}
}
