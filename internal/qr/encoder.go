package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Level is the QR error correction level.
type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
	LevelHighest
)

// Encoder turns a payload into an image.
type Encoder interface {
	Encode(payload string, level Level) ([]byte, error)
}

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 180

// PNGEncoder renders QR codes as PNG images.
type PNGEncoder struct {
	Size int
}

var _ Encoder = PNGEncoder{}

func (l Level) recovery() qrcode.RecoveryLevel {
	switch l {
	case LevelMedium:
		return qrcode.Medium
	case LevelHigh:
		return qrcode.High
	case LevelHighest:
		return qrcode.Highest
	}
	return qrcode.Low
}

// Encode renders payload as a PNG.
func (e PNGEncoder) Encode(payload string, level Level) ([]byte, error) {
	size := e.Size
	if size <= 0 {
		size = DefaultSize
	}

	code, err := qrcode.New(payload, level.recovery())
	if err != nil {
		return nil, fmt.Errorf("failed to create qr code: %w", err)
	}
	png, err := code.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr png: %w", err)
	}
	return png, nil
}
