package bundle

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/jwulff/guardian-go/internal/health"
)

// LOINC codes for the observations a bundle carries.
const (
	LoincBloodPressurePanel = "85354-9"
	LoincSystolic           = "8480-6"
	LoincDiastolic          = "8462-4"
	LoincHeartRate          = "8867-4"
	LoincGlucoseFasting     = "1585-8"
	LoincGlucosePostMeal    = "88365-2"
	LoincGlucoseRandom      = "2339-0"
)

// UCUM unit codes.
const (
	UcumMmHg      = "mm[Hg]"
	UcumPerMinute = "/min"
	UcumMgDl      = "mg/dL"
)

// Note texts attached to observations.
const (
	NoteMedicationTaken = "medication taken"
	NoteTimingPrefix    = "timing: "
)

// observationNamespace scopes the name-based observation ids.
var observationNamespace = uuid.MustParse("6f1c2a52-3f0e-4d4b-9a59-3b1d8f0c7e21")

// Quantity is one coded numeric value with its unit.
type Quantity struct {
	Code    string  `json:"code"`
	Display string  `json:"display"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	UCUM    string  `json:"ucum"`
}

// Observation is one reading embedded in a bundle.
type Observation struct {
	ID         string
	Code       string // LOINC code of the observation as a whole
	Display    string
	Reading    health.Reading
	Quantities []Quantity
	Notes      []string
}

// Quantity returns the quantity with the given LOINC code.
func (o Observation) Quantity(code string) (Quantity, bool) {
	for _, q := range o.Quantities {
		if q.Code == code {
			return q, true
		}
	}
	return Quantity{}, false
}

// GlucoseCode returns the LOINC code for a glucose reading taken at timing.
func GlucoseCode(timing health.Timing) (code, display string) {
	switch timing {
	case health.TimingFasting:
		return LoincGlucoseFasting, "Fasting glucose [Mass/volume] in Capillary blood"
	case health.TimingPostPrandial:
		return LoincGlucosePostMeal, "Glucose [Mass/volume] in Capillary blood --post meal"
	default:
		return LoincGlucoseRandom, "Glucose [Mass/volume] in Blood"
	}
}

// NewObservation converts a reading into a coded observation. index is the
// reading's position in the time-ordered bundle.
func NewObservation(patientID string, index int, r health.Reading) Observation {
	obs := Observation{
		ID:      observationID(patientID, index, r),
		Reading: r,
	}

	switch v := r.(type) {
	case health.BloodPressure:
		obs.Code = LoincBloodPressurePanel
		obs.Display = "Blood pressure panel"
		obs.Quantities = []Quantity{
			{Code: LoincSystolic, Display: "Systolic blood pressure", Value: float64(v.Systolic), Unit: "mmHg", UCUM: UcumMmHg},
			{Code: LoincDiastolic, Display: "Diastolic blood pressure", Value: float64(v.Diastolic), Unit: "mmHg", UCUM: UcumMmHg},
			{Code: LoincHeartRate, Display: "Heart rate", Value: float64(v.Pulse), Unit: "bpm", UCUM: UcumPerMinute},
		}
	case health.Glucose:
		obs.Code, obs.Display = GlucoseCode(v.Timing)
		obs.Quantities = []Quantity{
			{Code: obs.Code, Display: obs.Display, Value: v.Value, Unit: "mg/dL", UCUM: UcumMgDl},
		}
		obs.Notes = append(obs.Notes, NoteTimingPrefix+string(v.Timing))
	default:
		panic(health.UnknownReadingError{Reading: r})
	}

	if r.Medicated() {
		obs.Notes = append(obs.Notes, NoteMedicationTaken)
	}
	return obs
}

// observationID derives a stable id from the reading content and its position,
// so assembling the same readings twice yields the same observation ids while
// duplicate readings within one bundle stay distinct.
func observationID(patientID string, index int, r health.Reading) string {
	var key string
	switch v := r.(type) {
	case health.BloodPressure:
		key = fmt.Sprintf("%d/%d/%d/%t", v.Systolic, v.Diastolic, v.Pulse, v.MedicationTaken)
	case health.Glucose:
		key = strconv.FormatFloat(v.Value, 'g', -1, 64) + "/" + string(v.Timing) + "/" + strconv.FormatBool(v.MedicationTaken)
	}
	name := patientID + "|" + strconv.Itoa(index) + "|" + string(r.Kind()) + "|" + r.Time().UTC().Format("2006-01-02T15:04:05.999999999Z") + "|" + key
	return uuid.NewSHA1(observationNamespace, []byte(name)).String()
}
