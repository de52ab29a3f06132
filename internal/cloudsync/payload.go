package cloudsync

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/fhir"
	"github.com/jwulff/guardian-go/internal/health"
)

// Payload is a bundle ready to publish.
type Payload struct {
	Bundle *bundle.Bundle
	JSON   string
}

// Recent returns the n most recent readings of kind, oldest first.
func Recent(readings []health.Reading, kind health.Kind, n int) []health.Reading {
	var out []health.Reading
	for _, r := range readings {
		if r.Kind() == kind {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time().Before(out[j].Time())
	})
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// BuildPayload snapshots the n most recent readings of kind into a bundle
// and encodes it as FHIR JSON.
func BuildPayload(a *bundle.Assembler, patient health.Patient, kind health.Kind, readings []health.Reading, n int) (Payload, error) {
	b, err := a.Assemble(patient, kind, Recent(readings, kind, n))
	if err != nil {
		return Payload{}, err
	}
	data, err := json.Marshal(fhir.Encode(b))
	if err != nil {
		return Payload{}, fmt.Errorf("failed to marshal sync bundle: %w", err)
	}
	return Payload{Bundle: b, JSON: string(data)}, nil
}
