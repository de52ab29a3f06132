// Package qr projects a bundle down to what fits in a QR code and renders the
// payload as a PNG.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/fhir"
)

// MaxObservations is the number of most recent observations kept in a
// compact projection.
const MaxObservations = 3

// PartialSuffix is appended to the conclusion of a truncated projection.
const PartialSuffix = " (QR code contains partial data)"

// TooLargeNotice replaces the image when the payload cannot be encoded.
const TooLargeNotice = "payload too large for QR code"

// Compact is a size-bounded copy of a bundle.
type Compact struct {
	Bundle  bundle.Bundle
	Dropped int
	Partial bool
}

// Project keeps the most recent MaxObservations observations of b in
// chronological order. b is not modified.
func Project(b *bundle.Bundle) Compact {
	c := b.Clone()
	dropped := 0
	if n := len(c.Observations); n > MaxObservations {
		dropped = n - MaxObservations
		c.Observations = c.Observations[dropped:]
		c.Conclusion += PartialSuffix
	}
	return Compact{Bundle: *c, Dropped: dropped, Partial: dropped > 0}
}

// Payload returns the base64 encoded FHIR JSON of the projection.
func Payload(c Compact) (string, error) {
	data, err := json.Marshal(fhir.Encode(&c.Bundle))
	if err != nil {
		return "", fmt.Errorf("failed to marshal compact bundle: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayload reverses Payload. Findings are recomputed from the carried
// readings; the conclusion is the one in the payload.
func DecodePayload(payload string) (*bundle.Bundle, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return fhir.Unmarshal(data)
}

// Image is a rendered QR code, or a notice when none could be produced.
type Image struct {
	PNG     []byte
	Payload string
	Notice  string
	Partial bool
}

// Render projects b, encodes the payload at LevelLow and returns the image.
// Encoder failures become a notice rather than an error.
func Render(b *bundle.Bundle, enc Encoder) (Image, error) {
	c := Project(b)
	payload, err := Payload(c)
	if err != nil {
		return Image{}, err
	}

	img := Image{Payload: payload, Partial: c.Partial}
	png, err := enc.Encode(payload, LevelLow)
	if err != nil {
		img.Notice = TooLargeNotice
		return img, nil
	}
	img.PNG = png
	return img, nil
}
