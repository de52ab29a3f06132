// Package chart builds trend series from readings and medication events and
// plots them for a terminal.
package chart

import (
	"sort"
	"time"

	"github.com/jwulff/guardian-go/internal/health"
)

// DefaultMarkerValue is the marker height when there are no readings.
const DefaultMarkerValue = 150

// MarkerHeadroom lifts markers above the highest plotted value.
const MarkerHeadroom = 1.05

// Point is one value on a line.
type Point struct {
	Time  time.Time
	Value float64
}

// Line is a named sequence of points sorted by time.
type Line struct {
	Name   string
	Points []Point
}

// Marker flags a medication dose on the time axis.
type Marker struct {
	Time  time.Time
	Value float64
	Label string
}

// Series is everything needed to draw one chart.
type Series struct {
	Kind    health.Kind
	Label   string
	Lines   []Line
	Markers []Marker
}

// Max returns the highest value across all lines.
func (s Series) Max() (float64, bool) {
	found := false
	var m float64
	for _, l := range s.Lines {
		for _, p := range l.Points {
			if !found || p.Value > m {
				m = p.Value
				found = true
			}
		}
	}
	return m, found
}

func sortPoints(points []Point) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
}

// Build collects the readings of kind into lines and the medication events
// into markers. Readings of other kinds are ignored.
func Build(kind health.Kind, readings []health.Reading, meds []health.MedicationEvent) Series {
	s := Series{Kind: kind}

	switch kind {
	case health.KindBloodPressure:
		s.Label = "Blood Pressure (mmHg)"
		sys := Line{Name: "Systolic"}
		dia := Line{Name: "Diastolic"}
		for _, bp := range health.SplitBloodPressure(readings) {
			sys.Points = append(sys.Points, Point{Time: bp.Timestamp, Value: float64(bp.Systolic)})
			dia.Points = append(dia.Points, Point{Time: bp.Timestamp, Value: float64(bp.Diastolic)})
		}
		s.Lines = []Line{sys, dia}
	default:
		s.Label = "Blood Glucose (mg/dL)"
		bg := Line{Name: "Glucose"}
		for _, g := range health.SplitGlucose(readings) {
			bg.Points = append(bg.Points, Point{Time: g.Timestamp, Value: g.Value})
		}
		s.Lines = []Line{bg}
	}
	for i := range s.Lines {
		sortPoints(s.Lines[i].Points)
	}

	markerValue := float64(DefaultMarkerValue)
	if m, ok := s.Max(); ok {
		markerValue = m * MarkerHeadroom
	}
	for _, ev := range meds {
		s.Markers = append(s.Markers, Marker{Time: ev.Timestamp, Value: markerValue, Label: ev.DrugName})
	}
	sort.SliceStable(s.Markers, func(i, j int) bool {
		return s.Markers[i].Time.Before(s.Markers[j].Time)
	})
	return s
}
