package health

import (
	"encoding/json"
	"fmt"
	"time"
)

// StoredReading is the persisted JSON form of a Reading.
type StoredReading struct {
	Type       Kind      `json:"type"`
	Date       time.Time `json:"date"`
	Systolic   int       `json:"systolic,omitempty"`
	Diastolic  int       `json:"diastolic,omitempty"`
	Pulse      int       `json:"pulse,omitempty"`
	Value      float64   `json:"value,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Timing     Timing    `json:"timing,omitempty"`
	Medication bool      `json:"medication"`
}

// legacyReading carries the field names written by older exports.
type legacyReading struct {
	DateTime        *time.Time `json:"dateTime"`
	MeasurementTime string     `json:"measurementTime"`
	MedicationTaken bool       `json:"medicationTaken"`
}

// UnmarshalJSON accepts both the current and the legacy field names.
func (s *StoredReading) UnmarshalJSON(data []byte) error {
	type plain StoredReading
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var legacy legacyReading
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}

	if p.Date.IsZero() && legacy.DateTime != nil {
		p.Date = *legacy.DateTime
	}
	if p.Timing == "" && legacy.MeasurementTime != "" {
		p.Timing = ParseTiming(legacy.MeasurementTime)
	}
	p.Medication = p.Medication || legacy.MedicationTaken
	if p.Type == "" {
		// Legacy records were stored in separate per-kind lists without a tag.
		if p.Systolic > 0 {
			p.Type = KindBloodPressure
		} else {
			p.Type = KindGlucose
		}
	}

	*s = StoredReading(p)
	return nil
}

// Store converts a Reading to its persisted form.
func Store(r Reading) StoredReading {
	switch v := r.(type) {
	case BloodPressure:
		return StoredReading{
			Type:       KindBloodPressure,
			Date:       v.Timestamp.UTC(),
			Systolic:   v.Systolic,
			Diastolic:  v.Diastolic,
			Pulse:      v.Pulse,
			Medication: v.MedicationTaken,
		}
	case Glucose:
		return StoredReading{
			Type:       KindGlucose,
			Date:       v.Timestamp.UTC(),
			Value:      v.Value,
			Unit:       "mg/dL",
			Timing:     v.Timing,
			Medication: v.MedicationTaken,
		}
	default:
		panic(UnknownReadingError{Reading: r})
	}
}

// Reading converts the persisted form back to a Reading.
func (s StoredReading) Reading() (Reading, error) {
	switch s.Type {
	case KindBloodPressure:
		return BloodPressure{
			Timestamp:       s.Date.UTC(),
			Systolic:        s.Systolic,
			Diastolic:       s.Diastolic,
			Pulse:           s.Pulse,
			MedicationTaken: s.Medication,
		}, nil
	case KindGlucose:
		timing := s.Timing
		if timing == "" {
			timing = TimingOther
		}
		return Glucose{
			Timestamp:       s.Date.UTC(),
			Value:           s.Value,
			Timing:          ParseTiming(string(timing)),
			MedicationTaken: s.Medication,
		}, nil
	}
	return nil, fmt.Errorf("unknown stored reading type %q", s.Type)
}

// EncodeReadings marshals readings to their persisted JSON array.
func EncodeReadings(rs []Reading) ([]byte, error) {
	stored := make([]StoredReading, len(rs))
	for i, r := range rs {
		stored[i] = Store(r)
	}
	return json.Marshal(stored)
}

// DecodeReadings unmarshals a persisted JSON array of readings.
func DecodeReadings(data []byte) ([]Reading, error) {
	var stored []StoredReading
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode readings: %w", err)
	}
	out := make([]Reading, 0, len(stored))
	for i, s := range stored {
		r, err := s.Reading()
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// MedicationEvent records a dose of a drug taken by the patient.
type MedicationEvent struct {
	ID        string    `json:"id"`
	DrugName  string    `json:"name"`
	Timestamp time.Time `json:"date"`
	Category  string    `json:"category"`
	Note      string    `json:"note"`
}
