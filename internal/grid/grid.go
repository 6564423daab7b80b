package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidLayout = errors.New("INVALID_LAYOUT")

type Cell struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

var Directions = []Direction{North, East, South, West}

var directionNames = [...]string{"north", "east", "south", "west"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("direction(%d)", d)
}

func (d Direction) Valid() bool { return d <= West }

// Opposite returns the direction facing back.
func (d Direction) Opposite() Direction { return (d + 2) % 4 }

// Clockwise returns the direction rotated a quarter turn clockwise.
func (d Direction) Clockwise() Direction { return (d + 1) % 4 }

func (d Direction) delta() (int, int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	default:
		return -1, 0
	}
}

func (d Direction) side() side { return 1 << d }

// ParseDirection accepts compass names, screen names and single letters.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "north", "up", "n", "u":
		return North, nil
	case "east", "right", "e", "r":
		return East, nil
	case "south", "down", "s", "d":
		return South, nil
	case "west", "left", "w", "l":
		return West, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", d)
	}
	return json.Marshal(d.String())
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Color string

const (
	Red    Color = "red"
	Green  Color = "green"
	Blue   Color = "blue"
	Yellow Color = "yellow"
	Silver Color = "silver"

	// Any marks a wildcard target that every robot can claim.
	Any Color = "any"
)

var RobotColors = []Color{Red, Green, Blue, Yellow, Silver}

func (c Color) IsRobot() bool {
	switch c {
	case Red, Green, Blue, Yellow, Silver:
		return true
	}
	return false
}

func (c Color) validTarget() bool { return c.IsRobot() || c == Any }

type Shape string

const (
	Circle   Shape = "circle"
	Triangle Shape = "triangle"
	Square   Shape = "square"
	Hexagon  Shape = "hexagon"
	Vortex   Shape = "vortex"
)

func (s Shape) valid() bool {
	switch s {
	case Circle, Triangle, Square, Hexagon, Vortex:
		return true
	}
	return false
}

type Target struct {
	Color Color `json:"color"`
	Shape Shape `json:"shape"`
	Cell  Cell  `json:"cell"`
}

// Matches reports whether a robot of the given color may score this target.
func (t Target) Matches(robot Color) bool {
	return t.Color == Any || t.Color == robot
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s at %s", t.Color, t.Shape, t.Cell)
}

// side is a bitmask of walled cell edges, indexed by Direction.
type side uint8

// Board is immutable once built by New.
type Board struct {
	size    int
	walls   []side
	blocked []bool
	targets []Target
	starts  map[Color]Cell
}

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(c Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < b.size && c.Y < b.size
}

func (b *Board) index(c Cell) int { return c.Y*b.size + c.X }

// HasWall reports whether the edge of c facing dir is walled. The board
// boundary always counts as a wall.
func (b *Board) HasWall(c Cell, dir Direction) bool {
	if !b.InBounds(c) {
		return true
	}
	if b.walls[b.index(c)]&dir.side() != 0 {
		return true
	}
	_, ok := b.Neighbor(c, dir)
	return !ok
}

// Neighbor returns the adjacent cell in dir, or false when it is off the board.
func (b *Board) Neighbor(c Cell, dir Direction) (Cell, bool) {
	dx, dy := dir.delta()
	n := Cell{X: c.X + dx, Y: c.Y + dy}
	return n, b.InBounds(n)
}

// WallBetween reports whether a wall separates two orthogonally adjacent
// cells. Cells that are not adjacent, or not both on the board, are
// considered separated.
func (b *Board) WallBetween(a, c Cell) bool {
	if !b.InBounds(a) || !b.InBounds(c) {
		return true
	}
	for _, dir := range Directions {
		if n, ok := b.Neighbor(a, dir); ok && n == c {
			return b.walls[b.index(a)]&dir.side() != 0
		}
	}
	return true
}

// Blocked cells can never hold a robot (the walled centre of a classic board).
func (b *Board) Blocked(c Cell) bool {
	return b.InBounds(c) && b.blocked[b.index(c)]
}

// Targets returns the target catalog in layout order.
func (b *Board) Targets() []Target {
	out := make([]Target, len(b.targets))
	copy(out, b.targets)
	return out
}

// TargetAt returns the target printed on c, if any.
func (b *Board) TargetAt(c Cell) (Target, bool) {
	for _, t := range b.targets {
		if t.Cell == c {
			return t, true
		}
	}
	return Target{}, false
}

// StartPositions returns the robot placement fixed by the layout; it is
// empty when robots should be placed at random.
func (b *Board) StartPositions() map[Color]Cell {
	out := make(map[Color]Cell, len(b.starts))
	for c, cell := range b.starts {
		out[c] = cell
	}
	return out
}

// Enclosed reports whether every edge of c is walled.
func (b *Board) Enclosed(c Cell) bool {
	for _, dir := range Directions {
		if !b.HasWall(c, dir) {
			return false
		}
	}
	return true
}

func (b *Board) addWall(c Cell, dir Direction) {
	b.walls[b.index(c)] |= dir.side()
	if n, ok := b.Neighbor(c, dir); ok {
		b.walls[b.index(n)] |= dir.Opposite().side()
	}
}

type boardJSON struct {
	Size    int        `json:"size"`
	Walls   []WallSpec `json:"walls"`
	Targets []Target   `json:"targets"`
	Blocked []Cell     `json:"blocked"`
}

// MarshalJSON describes the board for clients: every walled cell with the
// letters of its walled sides.
func (b *Board) MarshalJSON() ([]byte, error) {
	out := boardJSON{Size: b.size, Walls: []WallSpec{}, Targets: b.Targets(), Blocked: []Cell{}}
	for i, s := range b.walls {
		c := Cell{X: i % b.size, Y: i / b.size}
		if b.blocked[i] {
			out.Blocked = append(out.Blocked, c)
		}
		if s == 0 {
			continue
		}
		var sides strings.Builder
		for _, d := range Directions {
			if s&d.side() != 0 {
				sides.WriteByte(strings.ToUpper(d.String())[0])
			}
		}
		out.Walls = append(out.Walls, WallSpec{X: c.X, Y: c.Y, Sides: sides.String()})
	}
	return json.Marshal(out)
}
