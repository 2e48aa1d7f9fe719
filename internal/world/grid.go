package world

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a position lies outside the grid.
var ErrOutOfBounds = errors.New("position out of bounds")

// Grid is a width × height lattice where each cell holds an ordered list of
// occupants. The grid does not wrap. An occupant is expected to be in exactly
// one cell at a time; the grid itself does not track where things are.
type Grid[T any] struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	cells [][]T // row-major, index y*Width + x
	count int
}

// NewGrid creates an empty grid.
func NewGrid[T any](width, height int) *Grid[T] {
	return &Grid[T]{
		Width:  width,
		Height: height,
		cells:  make([][]T, width*height),
	}
}

// InBounds returns true if the position is inside the grid.
func (g *Grid[T]) InBounds(p Pos) bool {
	return p.X >= 0 && p.X < g.Width && p.Y >= 0 && p.Y < g.Height
}

// Place appends an occupant to the cell at p.
func (g *Grid[T]) Place(v T, p Pos) error {
	if !g.InBounds(p) {
		return fmt.Errorf("place at %s: %w", p, ErrOutOfBounds)
	}
	i := g.index(p)
	g.cells[i] = append(g.cells[i], v)
	g.count++
	return nil
}

// Occupants returns the occupants of the cell at p in placement order.
// The returned slice must not be modified. Out-of-bounds cells are empty.
func (g *Grid[T]) Occupants(p Pos) []T {
	if !g.InBounds(p) {
		return nil
	}
	return g.cells[g.index(p)]
}

// Count returns the total number of placed occupants.
func (g *Grid[T]) Count() int {
	return g.count
}

// String returns a summary of the grid.
func (g *Grid[T]) String() string {
	return fmt.Sprintf("Grid(%dx%d, occupants=%d)", g.Width, g.Height, g.count)
}

func (g *Grid[T]) index(p Pos) int {
	return p.Y*g.Width + p.X
}
