// Package bundle assembles clinical bundles: a patient, the selected readings
// as coded observations, and the trend conclusion drawn from exactly those
// readings.
package bundle

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwulff/guardian-go/internal/health"
	"github.com/jwulff/guardian-go/internal/trend"
)

// ErrNoReadings is returned when a bundle is requested for an empty selection.
var ErrNoReadings = errors.New("no readings selected")

// KindMismatchError is returned when a reading does not match the bundle kind.
type KindMismatchError struct {
	Want  health.Kind
	Got   health.Kind
	Index int
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("reading %d is %s, bundle kind is %s", e.Index, e.Got, e.Want)
}

// Bundle is an exported clinical document. It is never edited after assembly;
// projections work on copies.
type Bundle struct {
	ID           string
	CreatedAt    time.Time
	Kind         health.Kind
	Patient      health.Patient
	Observations []Observation
	Findings     []trend.Finding
	Conclusion   string
}

// Readings returns the embedded readings in bundle order.
func (b *Bundle) Readings() []health.Reading {
	out := make([]health.Reading, len(b.Observations))
	for i, o := range b.Observations {
		out[i] = o.Reading
	}
	return out
}

// Clone returns a deep copy of the bundle.
func (b *Bundle) Clone() *Bundle {
	c := *b
	c.Observations = make([]Observation, len(b.Observations))
	for i, o := range b.Observations {
		o.Quantities = append([]Quantity(nil), o.Quantities...)
		o.Notes = append([]string(nil), o.Notes...)
		c.Observations[i] = o
	}
	c.Findings = append([]trend.Finding(nil), b.Findings...)
	return &c
}

// Assembler builds bundles. Now and NewID are injectable for tests.
type Assembler struct {
	Now   func() time.Time
	NewID func() string
}

// NewAssembler creates an assembler using the wall clock and random UUIDs.
func NewAssembler() *Assembler {
	return &Assembler{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

var defaultAssembler = NewAssembler()

// Assemble builds a bundle with the default assembler.
func Assemble(patient health.Patient, kind health.Kind, readings []health.Reading) (*Bundle, error) {
	return defaultAssembler.Assemble(patient, kind, readings)
}

// Assemble builds a bundle for patient from readings, all of which must be of
// the given kind. Readings are normalized and ordered by time; the readings
// slice is not modified. Patient completeness is the caller's responsibility.
func (a *Assembler) Assemble(patient health.Patient, kind health.Kind, readings []health.Reading) (*Bundle, error) {
	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	for i, r := range readings {
		if r.Kind() != kind {
			return nil, &KindMismatchError{Want: kind, Got: r.Kind(), Index: i}
		}
	}

	sorted := make([]health.Reading, len(readings))
	for i, r := range readings {
		sorted[i] = health.Normalize(r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time().Before(sorted[j].Time())
	})

	b := &Bundle{
		ID:           a.NewID(),
		CreatedAt:    a.Now().UTC(),
		Kind:         kind,
		Patient:      patient,
		Observations: make([]Observation, len(sorted)),
	}
	for i, r := range sorted {
		b.Observations[i] = NewObservation(patient.ID, i, r)
	}

	b.Findings = trend.Analyze(sorted, b.CreatedAt)
	b.Conclusion = trend.Conclusion(b.Findings)
	return b, nil
}

// Rederive recomputes the conclusion from the bundle's readings and creation
// time alone.
func Rederive(b *Bundle) string {
	return trend.Conclusion(trend.Analyze(b.Readings(), b.CreatedAt))
}
