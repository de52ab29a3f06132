package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/trend"
)

const urnPrefix = "urn:uuid:"

// ErrNoPatient is returned when a decoded bundle has no Patient entry.
var ErrNoPatient = errors.New("bundle has no patient entry")

// PatientReference returns the in-bundle reference for a patient id.
func PatientReference(patientID string) string {
	return urnPrefix + patientID
}

// ReportID derives the diagnostic report id from the bundle id.
func ReportID(bundleID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("report:"+bundleID)).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func reportTitle(kind health.Kind) string {
	return kind.Title() + " monitoring report"
}

// Encode converts a bundle to its FHIR collection form: the patient, one
// Observation per reading, and a DiagnosticReport with the conclusion.
func Encode(b *bundle.Bundle) *Bundle {
	patientRef := PatientReference(b.Patient.ID)

	out := &Bundle{
		ResourceType: TypeBundle,
		ID:           b.ID,
		Meta:         Meta{LastUpdated: formatTime(b.CreatedAt)},
		Type:         "collection",
		Entry:        []Entry{{FullURL: patientRef, Resource: encodePatient(b.Patient)}},
	}

	results := make([]Reference, 0, len(b.Observations))
	for _, o := range b.Observations {
		url := urnPrefix + o.ID
		out.Entry = append(out.Entry, Entry{FullURL: url, Resource: encodeObservation(o, patientRef)})
		results = append(results, Reference{Reference: url})
	}

	reportID := ReportID(b.ID)
	out.Entry = append(out.Entry, Entry{
		FullURL: urnPrefix + reportID,
		Resource: &DiagnosticReport{
			ResourceType:      TypeDiagnosticReport,
			ID:                reportID,
			Status:            "final",
			Code:              CodeableConcept{Text: reportTitle(b.Kind)},
			Subject:           Reference{Reference: patientRef},
			EffectiveDateTime: formatTime(b.CreatedAt),
			Result:            results,
			Conclusion:        b.Conclusion,
		},
	})
	return out
}

func encodePatient(p health.Patient) *Patient {
	return &Patient{
		ResourceType: TypePatient,
		ID:           p.ID,
		Meta:         Meta{LastUpdated: formatTime(p.UpdatedAt)},
		Identifier: []Identifier{{
			Use: "usual",
			Type: &CodeableConcept{Coding: []Coding{{
				System:  SystemIdentifierType,
				Code:    "MR",
				Display: "Medical Record Number",
			}}},
			System: SystemPatientIdentifier,
			Value:  p.ID,
		}},
		Name:      []HumanName{{Use: "usual", Text: p.DisplayName}},
		Gender:    string(p.Gender),
		BirthDate: p.BirthDate(),
	}
}

func encodeObservation(o bundle.Observation, patientRef string) *Observation {
	category := "laboratory"
	if o.Reading.Kind() == health.KindBloodPressure {
		category = "vital-signs"
	}

	obs := &Observation{
		ResourceType:      TypeObservation,
		ID:                o.ID,
		Status:            "final",
		Category:          []CodeableConcept{{Coding: []Coding{{System: SystemObservationCategory, Code: category}}}},
		Code:              CodeableConcept{Coding: []Coding{{System: SystemLOINC, Code: o.Code, Display: o.Display}}},
		Subject:           Reference{Reference: patientRef},
		EffectiveDateTime: formatTime(o.Reading.Time()),
	}
	for _, n := range o.Notes {
		obs.Note = append(obs.Note, Annotation{Text: n})
	}

	switch o.Reading.(type) {
	case health.BloodPressure:
		for _, q := range o.Quantities {
			obs.Component = append(obs.Component, ObservationComponent{
				Code:          CodeableConcept{Coding: []Coding{{System: SystemLOINC, Code: q.Code, Display: q.Display}}},
				ValueQuantity: encodeQuantity(q),
			})
		}
	case health.Glucose:
		q := encodeQuantity(o.Quantities[0])
		obs.ValueQuantity = &q
	default:
		panic(health.UnknownReadingError{Reading: o.Reading})
	}
	return obs
}

func encodeQuantity(q bundle.Quantity) Quantity {
	return Quantity{Value: q.Value, Unit: q.Unit, System: SystemUCUM, Code: q.UCUM}
}

// Marshal encodes a bundle as indented FHIR JSON.
func Marshal(b *bundle.Bundle) ([]byte, error) {
	return json.MarshalIndent(Encode(b), "", "  ")
}

// Unmarshal decodes FHIR JSON into a bundle.
func Unmarshal(data []byte) (*bundle.Bundle, error) {
	var fb Bundle
	if err := json.Unmarshal(data, &fb); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return Decode(&fb)
}

// Decode converts a FHIR collection bundle back to a bundle. Findings are
// recomputed from the decoded readings at the bundle's creation time.
func Decode(fb *Bundle) (*bundle.Bundle, error) {
	if fb.ResourceType != TypeBundle {
		return nil, fmt.Errorf("unexpected resourceType %q", fb.ResourceType)
	}
	fp, ok := fb.Patient()
	if !ok {
		return nil, ErrNoPatient
	}

	createdAt, err := parseTime(fb.Meta.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("bundle lastUpdated: %w", err)
	}

	b := &bundle.Bundle{
		ID:        fb.ID,
		CreatedAt: createdAt,
		Patient:   decodePatient(fp),
	}

	for i, fo := range fb.Observations() {
		r, err := decodeReading(fo)
		if err != nil {
			return nil, fmt.Errorf("observation %d: %w", i, err)
		}
		o := bundle.NewObservation(b.Patient.ID, i, r)
		o.ID = fo.ID
		b.Observations = append(b.Observations, o)
	}

	report, hasReport := fb.Report()
	switch {
	case len(b.Observations) > 0:
		b.Kind = b.Observations[0].Reading.Kind()
	case hasReport && report.Code.Text == reportTitle(health.KindGlucose):
		b.Kind = health.KindGlucose
	default:
		b.Kind = health.KindBloodPressure
	}

	if hasReport {
		b.Conclusion = report.Conclusion
	}
	b.Findings = trend.Analyze(b.Readings(), b.CreatedAt)
	return b, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func decodePatient(fp *Patient) health.Patient {
	p := health.Patient{
		ID:     fp.ID,
		Gender: health.ParseGender(fp.Gender),
	}
	if len(fp.Identifier) > 0 && fp.Identifier[0].Value != "" {
		p.ID = fp.Identifier[0].Value
	}
	if len(fp.Name) > 0 {
		p.DisplayName = fp.Name[0].Text
	}
	if len(fp.BirthDate) >= 4 {
		if year, err := strconv.Atoi(fp.BirthDate[:4]); err == nil {
			p.BirthYear = year
		}
	}
	if t, err := parseTime(fp.Meta.LastUpdated); err == nil {
		p.UpdatedAt = t
	}
	return p
}

func decodeReading(fo *Observation) (health.Reading, error) {
	ts, err := parseTime(fo.EffectiveDateTime)
	if err != nil {
		return nil, fmt.Errorf("effectiveDateTime: %w", err)
	}
	if len(fo.Code.Coding) == 0 {
		return nil, errors.New("observation has no code")
	}

	medicated := false
	timing := health.Timing("")
	for _, n := range fo.Note {
		switch {
		case n.Text == bundle.NoteMedicationTaken:
			medicated = true
		case strings.HasPrefix(n.Text, bundle.NoteTimingPrefix):
			timing = health.ParseTiming(strings.TrimPrefix(n.Text, bundle.NoteTimingPrefix))
		}
	}

	code := fo.Code.Coding[0].Code
	switch code {
	case bundle.LoincBloodPressurePanel:
		bp := health.BloodPressure{Timestamp: ts, MedicationTaken: medicated}
		for _, c := range fo.Component {
			if len(c.Code.Coding) == 0 {
				continue
			}
			v := int(math.Round(c.ValueQuantity.Value))
			switch c.Code.Coding[0].Code {
			case bundle.LoincSystolic:
				bp.Systolic = v
			case bundle.LoincDiastolic:
				bp.Diastolic = v
			case bundle.LoincHeartRate:
				bp.Pulse = v
			}
		}
		return bp, nil
	case bundle.LoincGlucoseFasting, bundle.LoincGlucosePostMeal, bundle.LoincGlucoseRandom:
		if fo.ValueQuantity == nil {
			return nil, errors.New("glucose observation has no valueQuantity")
		}
		if timing == "" {
			timing = timingForCode(code)
		}
		return health.Glucose{
			Timestamp:       ts,
			Value:           fo.ValueQuantity.Value,
			Timing:          timing,
			MedicationTaken: medicated,
		}, nil
	}
	return nil, fmt.Errorf("unsupported observation code %q", code)
}

func timingForCode(code string) health.Timing {
	switch code {
	case bundle.LoincGlucoseFasting:
		return health.TimingFasting
	case bundle.LoincGlucosePostMeal:
		return health.TimingPostPrandial
	}
	return health.TimingOther
}
