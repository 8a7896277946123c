package locator

import (
	"fmt"
	"strings"
)

// Direction is one of the six axis-aligned unit directions of the grid.
type Direction uint8

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

// Directions lists all six directions in index order.
var Directions = []Direction{Down, Up, North, South, West, East}

// Horizontals lists the four planar directions around a full block.
var Horizontals = []Direction{North, South, West, East}

var directionNames = [...]string{"down", "up", "north", "south", "west", "east"}

var directionSteps = [...]BlockPos{
	{0, -1, 0},
	{0, 1, 0},
	{0, 0, -1},
	{0, 0, 1},
	{-1, 0, 0},
	{1, 0, 0},
}

// Valid reports whether d is one of the six directions.
func (d Direction) Valid() bool {
	return int(d) < len(directionNames)
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
	return directionNames[d]
}

// Opposite returns the direction pointing the other way along the same axis.
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Step returns the unit offset of d.
func (d Direction) Step() BlockPos {
	return directionSteps[d]
}

// Axis returns 0, 1 or 2 for the Y, Z and X axes respectively.
func (d Direction) Axis() int {
	return int(d) >> 1
}

// IsPerpendicular reports whether d and o lie on different axes.
func (d Direction) IsPerpendicular(o Direction) bool {
	return d.Axis() != o.Axis()
}

// Perpendicular returns the four directions perpendicular to d, in index order.
func (d Direction) Perpendicular() []Direction {
	out := make([]Direction, 0, 4)
	for _, o := range Directions {
		if d.IsPerpendicular(o) {
			out = append(out, o)
		}
	}
	return out
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (Direction, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range directionNames {
		if n == name {
			return Direction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// DirectionByNormal returns the direction whose step equals n, if any.
func DirectionByNormal(n BlockPos) (Direction, bool) {
	for i, step := range directionSteps {
		if step == n {
			return Direction(i), true
		}
	}
	return 0, false
}

// BlockPos is an integer grid coordinate.
type BlockPos struct {
	X, Y, Z int
}

// Pos is shorthand for BlockPos{x, y, z}.
func Pos(x, y, z int) BlockPos {
	return BlockPos{X: x, Y: y, Z: z}
}

// Add returns p + o.
func (p BlockPos) Add(o BlockPos) BlockPos {
	return BlockPos{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Sub returns p - o.
func (p BlockPos) Sub(o BlockPos) BlockPos {
	return BlockPos{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Offset returns the neighboring coordinate in direction d.
func (p BlockPos) Offset(d Direction) BlockPos {
	return p.Add(d.Step())
}

// DirectionTo returns the direction from p to o when they are face-adjacent.
func (p BlockPos) DirectionTo(o BlockPos) (Direction, bool) {
	return DirectionByNormal(o.Sub(p))
}

func (p BlockPos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}
