package grid

import "strings"

// Quadrant is one square tile of a board, described in north-west
// orientation: its (Size-1, Size-1) corner touches the board centre.
// Mirror flips the tile across that diagonal before it is rotated.
type Quadrant struct {
	Name    string       `yaml:"name"`
	Size    int          `yaml:"size"`
	Mirror  bool         `yaml:"mirror"`
	Walls   []WallSpec   `yaml:"walls"`
	Targets []TargetSpec `yaml:"targets"`
	Blocked []Cell       `yaml:"blocked"`
}

// tileTransform maps a local tile coordinate into board space.
type tileTransform struct {
	size   int
	turns  int
	mirror bool
	dx, dy int
}

func (t tileTransform) cell(x, y int) (int, int) {
	if t.mirror {
		x, y = y, x
	}
	for range t.turns {
		x, y = t.size-1-y, x
	}
	return x + t.dx, y + t.dy
}

func (t tileTransform) dir(d Direction) Direction {
	if t.mirror {
		switch d {
		case North:
			d = West
		case West:
			d = North
		case East:
			d = South
		case South:
			d = East
		}
	}
	for range t.turns {
		d = d.Clockwise()
	}
	return d
}

func (t tileTransform) sides(s string) (string, error) {
	dirs, err := parseSides(s)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, d := range dirs {
		sb.WriteByte(strings.ToUpper(t.dir(d).String())[0])
	}
	return sb.String(), nil
}

// Assemble places four tiles clockwise from the north-west corner, rotating
// each a further quarter turn, and returns the flattened layout.
func Assemble(quads []Quadrant) (Layout, error) {
	if len(quads) != 4 {
		return Layout{}, invalid("need exactly 4 quadrants, got %d", len(quads))
	}
	q := quads[0].Size
	if q < 1 {
		return Layout{}, invalid("quadrant %q has size %d", quads[0].Name, q)
	}
	for _, quad := range quads[1:] {
		if quad.Size != q {
			return Layout{}, invalid("quadrant %q has size %d, want %d", quad.Name, quad.Size, q)
		}
	}

	offsets := [4][2]int{{0, 0}, {q, 0}, {q, q}, {0, q}}
	out := Layout{Size: 2 * q}
	for i, quad := range quads {
		tr := tileTransform{size: q, turns: i, mirror: quad.Mirror, dx: offsets[i][0], dy: offsets[i][1]}
		inTile := func(x, y int) bool { return x >= 0 && y >= 0 && x < q && y < q }

		for _, w := range quad.Walls {
			if !inTile(w.X, w.Y) {
				return Layout{}, invalid("quadrant %q wall at (%d,%d) is off the tile", quad.Name, w.X, w.Y)
			}
			sides, err := tr.sides(w.Sides)
			if err != nil {
				return Layout{}, invalid("quadrant %q wall at (%d,%d): %v", quad.Name, w.X, w.Y, err)
			}
			x, y := tr.cell(w.X, w.Y)
			out.Walls = append(out.Walls, WallSpec{X: x, Y: y, Sides: sides})
		}
		for _, t := range quad.Targets {
			if !inTile(t.X, t.Y) {
				return Layout{}, invalid("quadrant %q target at (%d,%d) is off the tile", quad.Name, t.X, t.Y)
			}
			x, y := tr.cell(t.X, t.Y)
			out.Targets = append(out.Targets, TargetSpec{Color: t.Color, Shape: t.Shape, X: x, Y: y})
		}
		for _, c := range quad.Blocked {
			if !inTile(c.X, c.Y) {
				return Layout{}, invalid("quadrant %q blocked cell %s is off the tile", quad.Name, c)
			}
			x, y := tr.cell(c.X, c.Y)
			out.Blocked = append(out.Blocked, Cell{X: x, Y: y})
		}
	}
	return out, nil
}
