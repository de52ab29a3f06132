// Package ocr pulls device reading values out of recognized text.
//
// The recognition engine itself is a black box behind Recognizer; Extract
// only ever sees the raw text it returns.
package ocr

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/guardian-go/internal/health"
)

// Outcome classifies an extraction.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeFail        Outcome = "fail"
	OutcomeMismatch    Outcome = "mismatch"
	OutcomePartialFail Outcome = "partial_fail"
)

// Plausible ranges for unlabeled numbers, exclusive at both ends.
const (
	pressureMin = 40
	pressureMax = 220
	glucoseMin  = 20
	glucoseMax  = 600
)

var (
	slashPair    = regexp.MustCompile(`(\d{2,3})\s*[/-]\s*(\d{2,3})`)
	strictSlash  = regexp.MustCompile(`\d{2,3}\s*/\s*\d{2,3}`)
	pulseLabel   = regexp.MustCompile(`(pulse|bpm|hr|心率|脈搏)\D*(\d{2,3})`)
	glucoseLabel = regexp.MustCompile(`(\d{2,3})\s*(mg|glu|blo)`)
	anyNumber    = regexp.MustCompile(`\d{2,3}`)
)

// Result is what Extract found.
type Result struct {
	Kind      health.Kind
	Outcome   Outcome
	Systolic  int
	Diastolic int
	Pulse     int
	Glucose   float64
}

// OK reports whether all required values were found.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}

// Message is the user-facing text for the outcome.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeOK:
		if r.Kind == health.KindBloodPressure {
			return fmt.Sprintf("read %d/%d mmHg", r.Systolic, r.Diastolic)
		}
		return fmt.Sprintf("read glucose %s mg/dL", strconv.FormatFloat(r.Glucose, 'f', -1, 64))
	case OutcomeMismatch:
		if r.Kind == health.KindBloodPressure {
			return "this looks like a glucose meter photo"
		}
		return "this looks like a blood pressure monitor photo"
	case OutcomePartialFail:
		return fmt.Sprintf("found systolic %d but no diastolic value", r.Systolic)
	}
	if r.Kind == health.KindBloodPressure {
		return "could not recognize blood pressure values"
	}
	return "could not find a glucose value"
}

// Reading converts a successful result into a reading taken at ts. timing
// applies to glucose only.
func (r Result) Reading(ts time.Time, timing health.Timing) (health.Reading, error) {
	if !r.OK() {
		return nil, fmt.Errorf("extraction %s: %s", r.Outcome, r.Message())
	}
	if r.Kind == health.KindBloodPressure {
		return health.BloodPressure{Timestamp: ts, Systolic: r.Systolic, Diastolic: r.Diastolic, Pulse: r.Pulse}, nil
	}
	return health.Glucose{Timestamp: ts, Value: r.Glucose, Timing: timing}, nil
}

// Extract reads values of the expected kind from raw recognized text.
func Extract(raw string, expected health.Kind) Result {
	text := strings.ToLower(raw)
	if expected == health.KindGlucose {
		return extractGlucose(text)
	}
	return extractBloodPressure(text)
}

func numbers(text string, lo, hi int) []int {
	var out []int
	for _, s := range anyNumber.FindAllString(text, -1) {
		n, _ := strconv.Atoi(s)
		if n > lo && n < hi {
			out = append(out, n)
		}
	}
	return out
}

func extractBloodPressure(text string) Result {
	res := Result{Kind: health.KindBloodPressure, Outcome: OutcomeFail}
	if strings.Contains(text, "mg/dl") || strings.Contains(text, "glucose") {
		res.Outcome = OutcomeMismatch
		return res
	}

	if m := slashPair.FindStringSubmatch(text); m != nil {
		res.Systolic, _ = strconv.Atoi(m[1])
		res.Diastolic, _ = strconv.Atoi(m[2])
	}
	if m := pulseLabel.FindStringSubmatch(text); m != nil {
		res.Pulse, _ = strconv.Atoi(m[2])
	}

	if res.Systolic == 0 || res.Diastolic == 0 {
		unique := distinctDescending(numbers(text, pressureMin, pressureMax))
		switch {
		case len(unique) >= 2:
			res.Systolic, res.Diastolic = unique[0], unique[1]
			if res.Pulse == 0 && len(unique) >= 3 && unique[2] < res.Systolic {
				res.Pulse = unique[2]
			}
		case len(unique) == 1 && res.Systolic == 0:
			res.Systolic = unique[0]
		}
	}

	switch {
	case res.Systolic > 0 && res.Diastolic > 0:
		if res.Systolic < res.Diastolic {
			res.Systolic, res.Diastolic = res.Diastolic, res.Systolic
		}
		res.Outcome = OutcomeOK
	case res.Systolic > 0:
		res.Outcome = OutcomePartialFail
	}
	return res
}

func distinctDescending(ns []int) []int {
	seen := make(map[int]bool, len(ns))
	var out []int
	for _, n := range ns {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func extractGlucose(text string) Result {
	res := Result{Kind: health.KindGlucose, Outcome: OutcomeFail}
	if strictSlash.MatchString(text) || strings.Contains(text, "mmhg") {
		res.Outcome = OutcomeMismatch
		return res
	}

	if m := glucoseLabel.FindStringSubmatch(text); m != nil {
		v, _ := strconv.Atoi(m[1])
		res.Glucose = float64(v)
	}
	if res.Glucose == 0 {
		if ns := numbers(text, glucoseMin, glucoseMax); len(ns) > 0 {
			res.Glucose = float64(ns[0])
		}
	}
	if res.Glucose > 0 {
		res.Outcome = OutcomeOK
	}
	return res
}

// Recognizer turns an image into raw text.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Scan recognizes image and extracts values of the expected kind.
func Scan(ctx context.Context, rec Recognizer, image []byte, expected health.Kind) (Result, error) {
	text, err := rec.Recognize(ctx, image)
	if err != nil {
		return Result{Kind: expected, Outcome: OutcomeFail}, fmt.Errorf("failed to recognize image: %w", err)
	}
	return Extract(text, expected), nil
}

// PlainText is a Recognizer for input that is already text, such as a
// transcript saved by an external engine.
type PlainText struct{}

func (PlainText) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return string(image), nil
}
