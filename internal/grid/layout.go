package grid

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WallSpec walls one or more edges of a cell. Sides is a string of compass
// letters, e.g. "NE".
type WallSpec struct {
	X     int    `json:"x" yaml:"x"`
	Y     int    `json:"y" yaml:"y"`
	Sides string `json:"sides" yaml:"sides"`
}

type TargetSpec struct {
	Color Color `yaml:"color"`
	Shape Shape `yaml:"shape"`
	X     int   `yaml:"x"`
	Y     int   `yaml:"y"`
}

// Layout is the declarative form of a board. When Quadrants holds four
// tiles they are assembled first and the flat Walls/Targets/Blocked lists
// are added on top.
type Layout struct {
	Name      string         `yaml:"name"`
	Size      int            `yaml:"size"`
	Quadrants []Quadrant     `yaml:"quadrants"`
	Walls     []WallSpec     `yaml:"walls"`
	Targets   []TargetSpec   `yaml:"targets"`
	Blocked   []Cell         `yaml:"blocked"`
	Robots    map[Color]Cell `yaml:"robots"`
}

// ParseLayout decodes a YAML layout document.
func ParseLayout(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return l, nil
}

// LoadLayoutFile reads and validates a YAML layout from disk.
func LoadLayoutFile(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout %s: %w", path, err)
	}
	l, err := ParseLayout(data)
	if err != nil {
		return nil, err
	}
	return New(l)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidLayout, fmt.Sprintf(format, args...))
}

func parseSides(s string) ([]Direction, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no sides given")
	}
	dirs := make([]Direction, 0, len(s))
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'N':
			dirs = append(dirs, North)
		case 'E':
			dirs = append(dirs, East)
		case 'S':
			dirs = append(dirs, South)
		case 'W':
			dirs = append(dirs, West)
		default:
			return nil, fmt.Errorf("bad side %q", r)
		}
	}
	return dirs, nil
}

// New validates a layout and builds the immutable board. Every failure
// wraps ErrInvalidLayout.
func New(l Layout) (*Board, error) {
	if len(l.Quadrants) > 0 {
		assembled, err := Assemble(l.Quadrants)
		if err != nil {
			return nil, err
		}
		if l.Size != 0 && l.Size != assembled.Size {
			return nil, invalid("size %d does not match quadrants (%d)", l.Size, assembled.Size)
		}
		assembled.Name = l.Name
		assembled.Walls = append(assembled.Walls, l.Walls...)
		assembled.Targets = append(assembled.Targets, l.Targets...)
		assembled.Blocked = append(assembled.Blocked, l.Blocked...)
		assembled.Robots = l.Robots
		l = assembled
	}

	if l.Size < 2 {
		return nil, invalid("board size must be at least 2, got %d", l.Size)
	}

	b := &Board{
		size:    l.Size,
		walls:   make([]side, l.Size*l.Size),
		blocked: make([]bool, l.Size*l.Size),
		starts:  make(map[Color]Cell),
	}

	for _, w := range l.Walls {
		c := Cell{X: w.X, Y: w.Y}
		if !b.InBounds(c) {
			return nil, invalid("wall at %s is off the %dx%d board", c, l.Size, l.Size)
		}
		dirs, err := parseSides(w.Sides)
		if err != nil {
			return nil, invalid("wall at %s: %v", c, err)
		}
		for _, d := range dirs {
			b.addWall(c, d)
		}
	}

	for _, c := range l.Blocked {
		if !b.InBounds(c) {
			return nil, invalid("blocked cell %s is off the board", c)
		}
		b.blocked[b.index(c)] = true
	}

	if len(l.Targets) == 0 {
		return nil, invalid("layout has no targets")
	}
	cells := make(map[Cell]bool, len(l.Targets))
	kinds := make(map[string]bool, len(l.Targets))
	for _, ts := range l.Targets {
		t := Target{Color: ts.Color, Shape: ts.Shape, Cell: Cell{X: ts.X, Y: ts.Y}}
		switch {
		case !t.Color.validTarget():
			return nil, invalid("target at %s has unknown color %q", t.Cell, t.Color)
		case !t.Shape.valid():
			return nil, invalid("target at %s has unknown shape %q", t.Cell, t.Shape)
		case !b.InBounds(t.Cell):
			return nil, invalid("target %s is off the board", t)
		case cells[t.Cell]:
			return nil, invalid("duplicate target at %s", t.Cell)
		case kinds[string(t.Color)+"/"+string(t.Shape)]:
			return nil, invalid("duplicate target %s %s", t.Color, t.Shape)
		case b.Blocked(t.Cell):
			return nil, invalid("target %s sits on a blocked cell", t)
		}
		cells[t.Cell] = true
		kinds[string(t.Color)+"/"+string(t.Shape)] = true
		b.targets = append(b.targets, t)
	}

	// Walls are complete only now, so reachability is checked in a second pass.
	for _, t := range b.targets {
		if b.Enclosed(t.Cell) {
			return nil, invalid("target %s is walled on every side", t)
		}
	}

	seen := make(map[Cell]Color, len(l.Robots))
	for color, c := range l.Robots {
		switch {
		case !color.IsRobot():
			return nil, invalid("unknown robot color %q", color)
		case !b.InBounds(c):
			return nil, invalid("%s robot starts off the board at %s", color, c)
		case b.Blocked(c):
			return nil, invalid("%s robot starts on blocked cell %s", color, c)
		}
		if other, dup := seen[c]; dup {
			return nil, invalid("%s and %s robots both start at %s", other, color, c)
		}
		seen[c] = color
		b.starts[color] = c
	}

	return b, nil
}
