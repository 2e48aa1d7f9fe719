package agents

import "github.com/talgya/mouldnet/internal/world"

// Direction is one of the eight compass moves or DirNone.
type Direction uint8

const (
	DirNone Direction = iota
	DirUpLeft
	DirUpRight
	DirDownLeft
	DirDownRight
	DirLeft
	DirRight
	DirUp
	DirDown
)

var directionNames = [...]string{
	DirNone:      "none",
	DirUpLeft:    "up-left",
	DirUpRight:   "up-right",
	DirDownLeft:  "down-left",
	DirDownRight: "down-right",
	DirLeft:      "left",
	DirRight:     "right",
	DirUp:        "up",
	DirDown:      "down",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return "invalid"
}

// directionOffsets maps each direction to its cell offset. Up is -y.
var directionOffsets = [...]world.Pos{
	DirNone:      {X: 0, Y: 0},
	DirUpLeft:    {X: -1, Y: -1},
	DirUpRight:   {X: 1, Y: -1},
	DirDownLeft:  {X: -1, Y: 1},
	DirDownRight: {X: 1, Y: 1},
	DirLeft:      {X: -1, Y: 0},
	DirRight:     {X: 1, Y: 0},
	DirUp:        {X: 0, Y: -1},
	DirDown:      {X: 0, Y: 1},
}

// directionTable is indexed by [sign(dx)+1][sign(dy)+1].
var directionTable = [3][3]Direction{
	{DirUpLeft, DirLeft, DirDownLeft},
	{DirUp, DirNone, DirDown},
	{DirUpRight, DirRight, DirDownRight},
}

// Offset returns the unit move for d. Unknown directions do not move.
func (d Direction) Offset() world.Pos {
	if int(d) < len(directionOffsets) {
		return directionOffsets[d]
	}
	return world.Pos{}
}

// DirectionToward quantizes the vector (dx, dy) by sign.
func DirectionToward(dx, dy int) Direction {
	return directionTable[sign(dx)+1][sign(dy)+1]
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
