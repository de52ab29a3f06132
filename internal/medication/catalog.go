// Package medication holds the built-in drug catalog and turns doses into
// medication events.
package medication

import (
	"errors"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/jwulff/guardian-go/internal/health"
)

// Category groups drugs by the condition they treat.
type Category string

const (
	CategoryDiabetes     Category = "diabetes"
	CategoryDepression   Category = "depression"
	CategoryHypertension Category = "hypertension"
	CategoryOther        Category = "other"
)

// NoNote is the event note for drugs outside the catalog.
const NoNote = "no special notes"

// Drug is a catalog entry.
type Drug struct {
	ID           string     `json:"id"`
	Category     Category   `json:"category"`
	Name         string     `json:"name"`
	SideEffect   string     `json:"sideEffect"`
	Interactions []Category `json:"interactions"`
}

var catalog = []Drug{
	{ID: "d01", Category: CategoryDiabetes, Name: "Metformin", SideEffect: "Common side effects: stomach upset, diarrhea. Take with meals.", Interactions: []Category{CategoryDepression}},
	{ID: "d02", Category: CategoryDiabetes, Name: "Pioglitazone", SideEffect: "May cause swelling or weight gain."},
	{ID: "d03", Category: CategoryDiabetes, Name: "Januvia", SideEffect: "Few side effects, occasional sore throat."},
	{ID: "m01", Category: CategoryDepression, Name: "Fluoxetine", SideEffect: "May cause insomnia or appetite changes.", Interactions: []Category{CategoryDiabetes}},
	{ID: "m02", Category: CategoryDepression, Name: "Escitalopram", SideEffect: "Nausea is possible in the first weeks."},
	{ID: "m03", Category: CategoryDepression, Name: "Cymbalta", SideEffect: "May affect blood pressure, measure regularly.", Interactions: []Category{CategoryHypertension}},
	{ID: "h01", Category: CategoryHypertension, Name: "Amlodipine", SideEffect: "May cause ankle swelling or flushing."},
	{ID: "h02", Category: CategoryHypertension, Name: "Cozaar", SideEffect: "Occasional dizziness, stand up slowly."},
}

// Catalog returns a copy of every drug.
func Catalog() []Drug {
	return append([]Drug(nil), catalog...)
}

// Lookup finds a drug by name, ignoring case.
func Lookup(name string) (Drug, bool) {
	name = strings.TrimSpace(name)
	for _, d := range catalog {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Drug{}, false
}

// ByCategory lists drugs of one category. An empty category or "all" lists
// every drug.
func ByCategory(c Category) []Drug {
	if c == "" || c == "all" {
		return Catalog()
	}
	var out []Drug
	for _, d := range catalog {
		if d.Category == c {
			out = append(out, d)
		}
	}
	return out
}

func (d Drug) interactsWith(c Category) bool {
	for _, i := range d.Interactions {
		if i == c {
			return true
		}
	}
	return false
}

// Warning returns the interaction advisory for d, or "" if there is none.
// Glucose effects take precedence over blood pressure, then mood.
func Warning(d Drug) string {
	switch {
	case d.interactsWith(CategoryDiabetes):
		return "This drug may affect blood glucose, monitor closely."
	case d.interactsWith(CategoryHypertension):
		return "This drug may interact with blood pressure medication."
	case d.interactsWith(CategoryDepression):
		return "May affect the metabolism of mood stabilizers."
	}
	return ""
}

var (
	ErrNoName = errors.New("medication name is required")
	ErrNoTime = errors.New("medication time is required")
)

// NewEvent records a dose of name taken at. Catalog drugs carry their
// category and side effect note.
func NewEvent(name string, at time.Time) (health.MedicationEvent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return health.MedicationEvent{}, ErrNoName
	}
	if at.IsZero() {
		return health.MedicationEvent{}, ErrNoTime
	}

	ev := health.MedicationEvent{
		ID:        ksuid.New().String(),
		DrugName:  name,
		Timestamp: at.UTC(),
		Category:  string(CategoryOther),
		Note:      NoNote,
	}
	if d, ok := Lookup(name); ok {
		ev.DrugName = d.Name
		ev.Category = string(d.Category)
		ev.Note = d.SideEffect
	}
	return ev, nil
}
