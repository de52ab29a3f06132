package chart

import "strings"

// Blank is the rune of an empty cell.
const Blank = ' '

// Canvas is a fixed-size grid of runes.
type Canvas struct {
	Width  int
	Height int
	cells  []rune
}

// NewCanvas creates a blank canvas.
func NewCanvas(width, height int) *Canvas {
	c := &Canvas{Width: width, Height: height, cells: make([]rune, width*height)}
	for i := range c.cells {
		c.cells[i] = Blank
	}
	return c
}

// Set writes a cell. Out of bounds coordinates are silently ignored.
func (c *Canvas) Set(x, y int, r rune) {
	if x < 0 || x >= c.Width || y < 0 || y >= c.Height {
		return
	}
	c.cells[y*c.Width+x] = r
}

// Get returns the cell at x, y, or false if out of bounds.
func (c *Canvas) Get(x, y int) (rune, bool) {
	if x < 0 || x >= c.Width || y < 0 || y >= c.Height {
		return 0, false
	}
	return c.cells[y*c.Width+x], true
}

// Rows returns the canvas top to bottom.
func (c *Canvas) Rows() []string {
	rows := make([]string, c.Height)
	for y := 0; y < c.Height; y++ {
		rows[y] = string(c.cells[y*c.Width : (y+1)*c.Width])
	}
	return rows
}

// String joins the rows with newlines.
func (c *Canvas) String() string {
	return strings.Join(c.Rows(), "\n")
}
