package qr

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/health"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func glucoseBundle(t *testing.T, n int) *bundle.Bundle {
	t.Helper()
	var readings []health.Reading
	for i := 0; i < n; i++ {
		readings = append(readings, health.Glucose{
			Timestamp: testNow.Add(-time.Duration(n-i) * time.Hour),
			Value:     float64(100 + i),
			Timing:    health.TimingFasting,
		})
	}
	a := &bundle.Assembler{
		Now:   func() time.Time { return testNow },
		NewID: func() string { return "bundle-qr" },
	}
	b, err := a.Assemble(health.Patient{ID: "P1", DisplayName: "Jane Doe", Gender: health.GenderFemale, BirthYear: 1958}, health.KindGlucose, readings)
	require.NoError(t, err)
	return b
}

type fakeEncoder struct {
	payload string
	level   Level
	err     error
}

func (f *fakeEncoder) Encode(payload string, level Level) ([]byte, error) {
	f.payload = payload
	f.level = level
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

func TestProjectTruncates(t *testing.T) {
	b := glucoseBundle(t, 5)
	original := b.Clone()

	c := Project(b)

	require.Len(t, c.Bundle.Observations, MaxObservations)
	assert.True(t, c.Partial)
	assert.Equal(t, 2, c.Dropped)
	assert.Equal(t, b.Observations[2:], c.Bundle.Observations)
	assert.True(t, strings.HasSuffix(c.Bundle.Conclusion, PartialSuffix))
	assert.Contains(t, c.Bundle.Conclusion, "partial data")

	// Source untouched
	assert.Equal(t, original, b)
}

func TestProjectKeepsSmallBundles(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		b := glucoseBundle(t, n)
		c := Project(b)

		assert.False(t, c.Partial)
		assert.Zero(t, c.Dropped)
		assert.Equal(t, *b, c.Bundle)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	b := glucoseBundle(t, 4)
	c := Project(b)

	payload, err := Payload(c)
	require.NoError(t, err)

	decoded, err := DecodePayload(payload)
	require.NoError(t, err)
	require.Len(t, decoded.Observations, 3)
	assert.Equal(t, c.Bundle.Conclusion, decoded.Conclusion)
	for i, o := range decoded.Observations {
		assert.Equal(t, c.Bundle.Observations[i].Reading, o.Reading)
		assert.Equal(t, c.Bundle.Observations[i].ID, o.ID)
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	_, err := DecodePayload("%%%")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	enc := &fakeEncoder{}
	img, err := Render(glucoseBundle(t, 4), enc)
	require.NoError(t, err)

	assert.Equal(t, []byte("png"), img.PNG)
	assert.Empty(t, img.Notice)
	assert.True(t, img.Partial)
	assert.Equal(t, LevelLow, enc.level)
	assert.Equal(t, img.Payload, enc.payload)
}

func TestRenderTooLarge(t *testing.T) {
	enc := &fakeEncoder{err: errors.New("content too long to encode")}
	img, err := Render(glucoseBundle(t, 2), enc)
	require.NoError(t, err)

	assert.Nil(t, img.PNG)
	assert.Equal(t, TooLargeNotice, img.Notice)
	assert.NotEmpty(t, img.Payload)
}

func TestPNGEncoder(t *testing.T) {
	png, err := PNGEncoder{Size: 64}.Encode("hello", LevelLow)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = PNGEncoder{}.Encode(strings.Repeat("x", 8000), LevelHighest)
	assert.Error(t, err)
}
