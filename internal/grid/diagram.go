package grid

import (
	"strings"
)

// ParseDiagram reads a board drawn in ASCII, mostly for fixtures:
//
//	+---+---+---+
//	|R      |   |
//	+   +   +---+
//	|    rc     |
//	+   +---+   +
//	|B        *v|
//	+---+---+---+
//
// Each cell is three characters wide and may hold, in any position, a robot
// letter (R G B Y S) and a target: a color (r g b y s, or * for the
// wildcard) followed by a shape (c t q h v). A missing shape means circle,
// or vortex for the wildcard. "###" marks a blocked cell. '|' and "---"
// draw walls.
func ParseDiagram(s string) (Layout, error) {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimLeft(line, " \t")
		if line != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	if len(lines) < 3 {
		return Layout{}, invalid("diagram needs at least three lines")
	}
	size := (len(strings.TrimRight(lines[0], " ")) - 1) / 4
	if size < 1 || len(lines) != 2*size+1 {
		return Layout{}, invalid("diagram is not square: %d columns, %d lines", size, len(lines))
	}

	at := func(line string, i int) byte {
		if i < len(line) {
			return line[i]
		}
		return ' '
	}

	l := Layout{Size: size, Robots: make(map[Color]Cell)}
	for row := 0; row <= size; row++ {
		border := lines[2*row]
		for col := 0; col < size; col++ {
			if at(border, col*4+2) != '-' {
				continue
			}
			if row < size {
				l.Walls = append(l.Walls, WallSpec{X: col, Y: row, Sides: "N"})
			} else {
				l.Walls = append(l.Walls, WallSpec{X: col, Y: row - 1, Sides: "S"})
			}
		}
		if row == size {
			break
		}

		body := lines[2*row+1]
		for col := 0; col < size; col++ {
			c := Cell{X: col, Y: row}
			if at(body, col*4) == '|' {
				l.Walls = append(l.Walls, WallSpec{X: col, Y: row, Sides: "W"})
			}
			content := string([]byte{at(body, col*4+1), at(body, col*4+2), at(body, col*4+3)})
			if content == "###" {
				l.Blocked = append(l.Blocked, c)
				continue
			}
			if err := parseCell(&l, c, content); err != nil {
				return Layout{}, err
			}
		}
		if at(body, size*4) == '|' {
			l.Walls = append(l.Walls, WallSpec{X: size - 1, Y: row, Sides: "E"})
		}
	}
	return l, nil
}

// parseCell reads one cell's content by character class: upper case is a
// robot, lower case or '*' starts a target.
func parseCell(l *Layout, c Cell, content string) error {
	hasRobot, hasTarget := false, false
	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch {
		case ch == ' ' || ch == '.':
		case ch >= 'A' && ch <= 'Z':
			color, ok := diagramColors[ch|0x20]
			if !ok || hasRobot {
				return invalid("unknown robot %q at %s", ch, c)
			}
			hasRobot = true
			l.Robots[color] = c
		case ch == '*' || (ch >= 'a' && ch <= 'z'):
			color, ok := diagramColors[ch]
			if ch == '*' {
				color, ok = Any, true
			}
			if !ok || hasTarget {
				return invalid("unknown target color %q at %s", ch, c)
			}
			hasTarget = true

			shape := Circle
			if color == Any {
				shape = Vortex
			}
			if i+1 < len(content) && content[i+1] != ' ' && content[i+1] != '.' {
				i++
				if shape, ok = diagramShapes[content[i]]; !ok {
					return invalid("unknown target shape %q at %s", content[i], c)
				}
			}
			l.Targets = append(l.Targets, TargetSpec{Color: color, Shape: shape, X: c.X, Y: c.Y})
		default:
			return invalid("unexpected %q at %s", ch, c)
		}
	}
	return nil
}

var diagramColors = map[byte]Color{
	'r': Red,
	'g': Green,
	'b': Blue,
	'y': Yellow,
	's': Silver,
}

var diagramShapes = map[byte]Shape{
	'c': Circle,
	't': Triangle,
	'q': Square,
	'h': Hexagon,
	'v': Vortex,
}
