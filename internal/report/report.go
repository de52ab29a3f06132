// Package report flattens a bundle into the fixed-layout plain-text report
// shown on screen and sent by mail.
package report

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/jwulff/guardian-go/internal/bundle"
	"github.com/jwulff/guardian-go/internal/health"
)

const (
	Banner    = "=============================="
	Separator = "------------------------------"

	// NoObservations replaces the reading lines of an empty bundle.
	NoObservations = "No observations recorded."

	// MedicationMarker is appended to a reading line when medication was taken.
	MedicationMarker = " (medication taken)"

	timestampLayout = "2006/01/02 15:04"
)

// FormatTimestamp renders an instant as local wall-clock time. A nil loc
// means UTC.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timestampLayout)
}

// FormatGlucose prints a glucose value with exactly the precision it carries.
func FormatGlucose(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Line renders one reading without its index prefix.
func Line(r health.Reading, loc *time.Location) string {
	var body string
	switch v := r.(type) {
	case health.BloodPressure:
		body = fmt.Sprintf("BP: %d/%d mmHg, P: %d", v.Systolic, v.Diastolic, v.Pulse)
	case health.Glucose:
		body = fmt.Sprintf("BG: %s mg/dL (%s)", FormatGlucose(v.Value), v.Timing.Label())
	default:
		panic(health.UnknownReadingError{Reading: r})
	}
	if r.Medicated() {
		body += MedicationMarker
	}
	return FormatTimestamp(r.Time(), loc) + " | " + body
}

func lines(b *bundle.Bundle, loc *time.Location) []string {
	out := []string{
		Banner,
		"   " + b.Kind.Title() + " Report",
		Banner,
		fmt.Sprintf("Patient: %s | ID: %s", b.Patient.DisplayName, b.Patient.ID),
		Banner,
	}
	if len(b.Observations) == 0 {
		out = append(out, NoObservations)
	}
	for i, o := range b.Observations {
		out = append(out, fmt.Sprintf("[%d] %s", i+1, Line(o.Reading, loc)))
	}
	return append(out, Separator, "Analysis: "+b.Conclusion)
}

// Text renders the bundle as the canonical plain-text report, one reading per
// line in bundle order.
func Text(b *bundle.Bundle, loc *time.Location) string {
	return strings.Join(lines(b, loc), "\n") + "\n"
}

// HTML renders the same report as escaped lines joined with <br>.
func HTML(b *bundle.Bundle, loc *time.Location) string {
	ls := lines(b, loc)
	for i, l := range ls {
		ls[i] = html.EscapeString(l)
	}
	return "<pre>" + strings.Join(ls, "<br>") + "</pre>"
}

// Subject is the mail subject line for a bundle.
func Subject(b *bundle.Bundle) string {
	return fmt.Sprintf("%s report for %s (%s)", b.Kind.Title(), b.Patient.DisplayName, b.CreatedAt.Format("2006-01-02"))
}
