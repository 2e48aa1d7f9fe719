// Package world provides the bounded square lattice the colony grows on.
// Coordinates are integer (x, y) with the origin in the top-left corner.
package world

import (
	"fmt"
	"math"
)

// Pos is a cell coordinate on the grid.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns the position offset by d.
func (p Pos) Add(d Pos) Pos {
	return Pos{X: p.X + d.X, Y: p.Y + d.Y}
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// NeighborOffsets are the eight Moore-neighborhood offsets in row-major
// (dx, dy) order: dx outer, dy inner, (0,0) skipped.
var NeighborOffsets = [8]Pos{
	{X: -1, Y: -1},
	{X: -1, Y: 0},
	{X: -1, Y: 1},
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: 1, Y: -1},
	{X: 1, Y: 0},
	{X: 1, Y: 1},
}

// Neighbors returns the eight adjacent coordinates. Some may be out of bounds.
func (p Pos) Neighbors() [8]Pos {
	var result [8]Pos
	for i, d := range NeighborOffsets {
		result[i] = p.Add(d)
	}
	return result
}

// IsNeighbor reports whether q is one of the eight cells adjacent to p.
func (p Pos) IsNeighbor(q Pos) bool {
	dx, dy := q.X-p.X, q.Y-p.Y
	if dx == 0 && dy == 0 {
		return false
	}
	return dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1
}

// Distance returns the Euclidean distance between two cells.
func Distance(a, b Pos) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
