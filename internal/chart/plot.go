package chart

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Glyphs used by Plot.
const (
	GlyphMarker = '|'
	GlyphLine   = '.'
)

// pointGlyphs are assigned to lines in order.
var pointGlyphs = []rune{'*', 'o', '+'}

// minRange keeps flat series from filling a single row.
const minRange = 10.0

// Plot draws s onto a width x height canvas. The first returned line is the
// label with the value range; the rest are canvas rows, top to bottom.
// Medication markers are vertical bars drawn under the lines.
func Plot(s Series, width, height int) []string {
	if width < 2 {
		width = 2
	}
	if height < 2 {
		height = 2
	}
	canvas := NewCanvas(width, height)

	start, end, ok := timeRange(s)
	if !ok {
		return append([]string{s.Label + ": no data"}, canvas.Rows()...)
	}
	lo, hi := valueRange(s)

	for _, m := range s.Markers {
		x := timeToX(m.Time, start, end, width)
		for y := 0; y < height; y++ {
			canvas.Set(x, y, GlyphMarker)
		}
	}

	for i, l := range s.Lines {
		glyph := pointGlyphs[i%len(pointGlyphs)]
		var prevX, prevY int
		hasPrev := false
		for _, p := range l.Points {
			x := timeToX(p.Time, start, end, width)
			y := valueToY(p.Value, lo, hi, height)
			if hasPrev {
				drawLine(canvas, prevX, prevY, x, y)
			}
			prevX, prevY = x, y
			hasPrev = true
		}
		for _, p := range l.Points {
			canvas.Set(timeToX(p.Time, start, end, width), valueToY(p.Value, lo, hi, height), glyph)
		}
	}

	header := fmt.Sprintf("%s %s-%s", s.Label, formatValue(lo), formatValue(hi))
	return append([]string{header}, canvas.Rows()...)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func timeRange(s Series) (start, end time.Time, ok bool) {
	visit := func(t time.Time) {
		if !ok || t.Before(start) {
			start = t
		}
		if !ok || t.After(end) {
			end = t
		}
		ok = true
	}
	for _, l := range s.Lines {
		for _, p := range l.Points {
			visit(p.Time)
		}
	}
	for _, m := range s.Markers {
		visit(m.Time)
	}
	return start, end, ok
}

// valueRange returns the plotted value bounds. Markers do not widen it.
func valueRange(s Series) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, l := range s.Lines {
		for _, p := range l.Points {
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, DefaultMarkerValue
	}
	if hi-lo < minRange {
		pad := (minRange - (hi - lo)) / 2
		lo -= pad
		hi += pad
	}
	return lo, hi
}

func timeToX(t, start, end time.Time, width int) int {
	span := end.Sub(start)
	if span <= 0 {
		return 0
	}
	offset := t.Sub(start)
	return int(math.Round(float64(offset) / float64(span) * float64(width-1)))
}

// valueToY maps higher values to lower rows.
func valueToY(v, lo, hi float64, height int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	normalized := (v - lo) / (hi - lo)
	return height - 1 - int(math.Round(normalized*float64(height-1)))
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// drawLine connects two cells with Bresenham's algorithm, leaving the end
// points for the caller.
func drawLine(c *Canvas, x0, y0, x1, y1 int) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	x, y := x0, y0
	for {
		if (x != x0 || y != y0) && (x != x1 || y != y1) {
			c.Set(x, y, GlyphLine)
		}
		if x == x1 && y == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}
