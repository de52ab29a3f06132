package health

import (
	"fmt"
	"time"
)

// Gender of the patient, using the FHIR administrative-gender codes.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderOther   Gender = "other"
	GenderUnknown Gender = "unknown"
)

// ParseGender maps a wire value to a Gender. Unknown values become GenderUnknown.
func ParseGender(s string) Gender {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale, GenderOther:
		return g
	}
	return GenderUnknown
}

// Sentinel identity values used before the patient has been set up.
const (
	UnsetID        = "unset-1"
	UnsetName      = "unset"
	UnsetBirthYear = 1900
)

// Patient is the identity a bundle is issued for.
type Patient struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Gender      Gender    `json:"gender"`
	BirthYear   int       `json:"birthYear"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DefaultPatient returns a patient with every identity field unset.
func DefaultPatient() Patient {
	return Patient{
		ID:          UnsetID,
		DisplayName: UnsetName,
		Gender:      GenderUnknown,
		BirthYear:   UnsetBirthYear,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Complete reports whether every identity field holds a real value.
func (p Patient) Complete() bool {
	return p.Validate() == nil
}

// Validate returns a ValidationError for the first unset identity field.
func (p Patient) Validate() error {
	switch {
	case p.ID == "" || p.ID == UnsetID:
		return ValidationError{Field: "id", Reason: "not set"}
	case p.DisplayName == "" || p.DisplayName == UnsetName:
		return ValidationError{Field: "displayName", Reason: "not set"}
	case p.Gender == "" || p.Gender == GenderUnknown:
		return ValidationError{Field: "gender", Reason: "not set"}
	case p.BirthYear <= UnsetBirthYear:
		return ValidationError{Field: "birthYear", Reason: "not set"}
	case p.BirthYear > time.Now().Year():
		return ValidationError{Field: "birthYear", Reason: fmt.Sprintf("%d is in the future", p.BirthYear)}
	}
	return nil
}

// Age returns whole years since the birth year, or 0 if unknown.
func (p Patient) Age(now time.Time) int {
	if p.BirthYear <= UnsetBirthYear {
		return 0
	}
	age := now.Year() - p.BirthYear
	if age < 0 {
		return 0
	}
	return age
}

// BirthDate returns the FHIR birthDate value (January 1st of the birth year).
func (p Patient) BirthDate() string {
	return fmt.Sprintf("%04d-01-01", p.BirthYear)
}
