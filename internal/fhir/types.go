// Package fhir defines the FHIR R4 JSON shapes used to exchange bundles with
// clinicians' tooling, and converts between them and bundle.Bundle.
package fhir

import (
	"encoding/json"
	"fmt"
)

// Code systems.
const (
	SystemLOINC               = "http://loinc.org"
	SystemUCUM                = "http://unitsofmeasure.org"
	SystemObservationCategory = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemIdentifierType      = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemPatientIdentifier   = "urn:oid:1.2.36.1.4.1.30008.2.1.1.1"
)

// Resource type names.
const (
	TypeBundle           = "Bundle"
	TypePatient          = "Patient"
	TypeObservation      = "Observation"
	TypeDiagnosticReport = "DiagnosticReport"
)

// Coding is a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a set of codings plus free text.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference points at another resource in the bundle.
type Reference struct {
	Reference string `json:"reference"`
}

// Quantity is a measured amount.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// Annotation is a free-text note.
type Annotation struct {
	Text string `json:"text"`
}

// Meta carries resource metadata.
type Meta struct {
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Identifier is a business identifier.
type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value"`
}

// HumanName is a patient name.
type HumanName struct {
	Use  string `json:"use,omitempty"`
	Text string `json:"text"`
}

// Resource is any FHIR resource that can appear in a bundle entry.
type Resource interface {
	GetResourceType() string
}

// Patient resource.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Meta         Meta         `json:"meta"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"`
	BirthDate    string       `json:"birthDate,omitempty"`
}

func (p *Patient) GetResourceType() string { return TypePatient }

// ObservationComponent is one coded value inside a panel observation.
type ObservationComponent struct {
	Code          CodeableConcept `json:"code"`
	ValueQuantity Quantity        `json:"valueQuantity"`
}

// Observation resource.
type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id"`
	Status            string                 `json:"status"`
	Category          []CodeableConcept      `json:"category,omitempty"`
	Code              CodeableConcept        `json:"code"`
	Subject           Reference              `json:"subject"`
	EffectiveDateTime string                 `json:"effectiveDateTime"`
	ValueQuantity     *Quantity              `json:"valueQuantity,omitempty"`
	Component         []ObservationComponent `json:"component,omitempty"`
	Note              []Annotation           `json:"note,omitempty"`
}

func (o *Observation) GetResourceType() string { return TypeObservation }

// DiagnosticReport resource carrying the analysis conclusion.
type DiagnosticReport struct {
	ResourceType      string          `json:"resourceType"`
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Code              CodeableConcept `json:"code"`
	Subject           Reference       `json:"subject"`
	EffectiveDateTime string          `json:"effectiveDateTime"`
	Result            []Reference     `json:"result"`
	Conclusion        string          `json:"conclusion"`
}

func (r *DiagnosticReport) GetResourceType() string { return TypeDiagnosticReport }

// Entry is one resource in a bundle.
type Entry struct {
	FullURL  string   `json:"fullUrl"`
	Resource Resource `json:"resource"`
}

// UnmarshalJSON decodes the resource into its concrete type.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		FullURL  string          `json:"fullUrl"`
		Resource json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw.Resource, &head); err != nil {
		return fmt.Errorf("failed to read resourceType: %w", err)
	}

	var res Resource
	switch head.ResourceType {
	case TypePatient:
		res = &Patient{}
	case TypeObservation:
		res = &Observation{}
	case TypeDiagnosticReport:
		res = &DiagnosticReport{}
	default:
		return fmt.Errorf("unsupported resource type %q", head.ResourceType)
	}
	if err := json.Unmarshal(raw.Resource, res); err != nil {
		return fmt.Errorf("failed to decode %s: %w", head.ResourceType, err)
	}

	e.FullURL = raw.FullURL
	e.Resource = res
	return nil
}

// Bundle is a FHIR collection bundle.
type Bundle struct {
	ResourceType string  `json:"resourceType"`
	ID           string  `json:"id"`
	Meta         Meta    `json:"meta"`
	Type         string  `json:"type"`
	Entry        []Entry `json:"entry"`
}

// Patient returns the first patient entry.
func (b *Bundle) Patient() (*Patient, bool) {
	for _, e := range b.Entry {
		if p, ok := e.Resource.(*Patient); ok {
			return p, true
		}
	}
	return nil, false
}

// Observations returns the observation entries in bundle order.
func (b *Bundle) Observations() []*Observation {
	var out []*Observation
	for _, e := range b.Entry {
		if o, ok := e.Resource.(*Observation); ok {
			out = append(out, o)
		}
	}
	return out
}

// Report returns the diagnostic report entry.
func (b *Bundle) Report() (*DiagnosticReport, bool) {
	for _, e := range b.Entry {
		if r, ok := e.Resource.(*DiagnosticReport); ok {
			return r, true
		}
	}
	return nil, false
}
