package grid_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ricochet-server/internal/grid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDiagram = `
	+---+---+---+
	|R      |   |
	+   +   +---+
	|    rc     |
	+   +---+   +
	|B        *v|
	+---+---+---+
`

func TestParseDiagram(t *testing.T) {
	l, err := grid.ParseDiagram(sampleDiagram)
	require.NoError(t, err)
	b, err := grid.New(l)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(3, b.Size())
	assert.Equal(map[grid.Color]grid.Cell{
		grid.Red:  {X: 0, Y: 0},
		grid.Blue: {X: 0, Y: 2},
	}, b.StartPositions())

	assert.ElementsMatch([]grid.Target{
		{Color: grid.Red, Shape: grid.Circle, Cell: grid.Cell{X: 1, Y: 1}},
		{Color: grid.Any, Shape: grid.Vortex, Cell: grid.Cell{X: 2, Y: 2}},
	}, b.Targets())

	assert.True(b.WallBetween(grid.Cell{X: 1, Y: 0}, grid.Cell{X: 2, Y: 0}))
	assert.True(b.WallBetween(grid.Cell{X: 2, Y: 0}, grid.Cell{X: 2, Y: 1}))
	assert.True(b.WallBetween(grid.Cell{X: 1, Y: 1}, grid.Cell{X: 1, Y: 2}))
	assert.False(b.WallBetween(grid.Cell{X: 0, Y: 0}, grid.Cell{X: 1, Y: 0}))
	assert.False(b.WallBetween(grid.Cell{X: 1, Y: 1}, grid.Cell{X: 2, Y: 1}))
}

func TestParseDiagramReadsCellsByCharacterClass(t *testing.T) {
	l, err := grid.ParseDiagram(`
		+---+---+
		|Grt|yhB|
		+   +   +
		| * |rc |
		+---+---+
	`)
	require.NoError(t, err)

	assert.Equal(t, map[grid.Color]grid.Cell{
		grid.Green: {X: 0, Y: 0},
		grid.Blue:  {X: 1, Y: 0},
	}, l.Robots)
	assert.ElementsMatch(t, []grid.TargetSpec{
		{Color: grid.Red, Shape: grid.Triangle, X: 0, Y: 0},
		{Color: grid.Yellow, Shape: grid.Hexagon, X: 1, Y: 0},
		{Color: grid.Any, Shape: grid.Vortex, X: 0, Y: 1},
		{Color: grid.Red, Shape: grid.Circle, X: 1, Y: 1},
	}, l.Targets)
}

func TestParseDiagramRejectsGarbage(t *testing.T) {
	tests := map[string]string{
		"not square": "+---+---+\n|   |   |\n+---+---+",
		"bad robot":  "+---+---+\n|Q      |\n+   +   +\n| rc    |\n+---+---+",
		"bad shape":  "+---+---+\n|       |\n+   +   +\n| rz    |\n+---+---+",
		"two robots": "+---+---+\n|RG     |\n+   +   +\n| rc    |\n+---+---+",
		"stray mark": "+---+---+\n|  ?    |\n+   +   +\n| rc    |\n+---+---+",
		"too short":  "+---+",
	}
	for name, diagram := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := grid.ParseDiagram(diagram)
			assert.ErrorIs(t, err, grid.ErrInvalidLayout)
		})
	}
}

func TestParseLayoutYAML(t *testing.T) {
	doc := []byte(`
name: tiny
size: 5
walls:
  - {x: 2, y: 2, sides: NE}
targets:
  - {color: green, shape: square, x: 4, y: 4}
  - {color: any, shape: vortex, x: 2, y: 2}
robots:
  green: {x: 0, y: 0}
  red: {x: 4, y: 0}
`)
	l, err := grid.ParseLayout(doc)
	require.NoError(t, err)
	assert.Equal(t, "tiny", l.Name)

	b, err := grid.New(l)
	require.NoError(t, err)
	assert.Len(t, b.Targets(), 2)
	assert.True(t, b.HasWall(grid.Cell{X: 2, Y: 1}, grid.South))
	assert.True(t, b.HasWall(grid.Cell{X: 3, Y: 2}, grid.West))
	assert.Equal(t, grid.Cell{X: 4, Y: 0}, b.StartPositions()[grid.Red])

	_, err = grid.ParseLayout([]byte("size: [nope"))
	assert.ErrorIs(t, err, grid.ErrInvalidLayout)
}

func TestLoadLayoutFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("size: 3\ntargets:\n  - {color: red, shape: circle, x: 1, y: 1}\n"), 0o600))

	b, err := grid.LoadLayoutFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, b.Size())

	_, err = grid.LoadLayoutFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, grid.ErrInvalidLayout))
}

func tile(name string, color grid.Color) grid.Quadrant {
	return grid.Quadrant{
		Name:    name,
		Size:    2,
		Walls:   []grid.WallSpec{{X: 0, Y: 0, Sides: "S"}},
		Targets: []grid.TargetSpec{{Color: color, Shape: grid.Circle, X: 0, Y: 0}},
	}
}

func TestAssembleRotatesTilesClockwise(t *testing.T) {
	l, err := grid.Assemble([]grid.Quadrant{
		tile("a", grid.Red), tile("b", grid.Green), tile("c", grid.Blue), tile("d", grid.Yellow),
	})
	require.NoError(t, err)
	b, err := grid.New(l)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(4, b.Size())

	at := func(c grid.Color) grid.Cell {
		for _, tg := range b.Targets() {
			if tg.Color == c {
				return tg.Cell
			}
		}
		t.Fatalf("no %s target", c)
		return grid.Cell{}
	}
	assert.Equal(grid.Cell{X: 0, Y: 0}, at(grid.Red))
	assert.Equal(grid.Cell{X: 3, Y: 0}, at(grid.Green))
	assert.Equal(grid.Cell{X: 3, Y: 3}, at(grid.Blue))
	assert.Equal(grid.Cell{X: 0, Y: 3}, at(grid.Yellow))

	// The local south wall turns with its tile.
	assert.True(b.HasWall(grid.Cell{X: 0, Y: 0}, grid.South))
	assert.True(b.WallBetween(grid.Cell{X: 3, Y: 0}, grid.Cell{X: 2, Y: 0}))
	assert.True(b.WallBetween(grid.Cell{X: 3, Y: 3}, grid.Cell{X: 3, Y: 2}))
	assert.True(b.WallBetween(grid.Cell{X: 0, Y: 3}, grid.Cell{X: 1, Y: 3}))
}

func TestAssembleMirror(t *testing.T) {
	a := grid.Quadrant{
		Name:    "a",
		Size:    2,
		Mirror:  true,
		Walls:   []grid.WallSpec{{X: 1, Y: 0, Sides: "E"}},
		Targets: []grid.TargetSpec{{Color: grid.Red, Shape: grid.Circle, X: 1, Y: 0}},
	}
	empty := grid.Quadrant{Name: "e", Size: 2}
	l, err := grid.Assemble([]grid.Quadrant{a, empty, empty, empty})
	require.NoError(t, err)

	require.Len(t, l.Targets, 1)
	assert.Equal(t, 0, l.Targets[0].X)
	assert.Equal(t, 1, l.Targets[0].Y)
	assert.Equal(t, []grid.WallSpec{{X: 0, Y: 1, Sides: "S"}}, l.Walls)
}

func TestAssembleRejectsMismatchedTiles(t *testing.T) {
	q := grid.Quadrant{Name: "q", Size: 2}
	_, err := grid.Assemble([]grid.Quadrant{q, q, q})
	assert.ErrorIs(t, err, grid.ErrInvalidLayout)

	big := grid.Quadrant{Name: "big", Size: 3}
	_, err = grid.Assemble([]grid.Quadrant{q, q, big, q})
	assert.ErrorIs(t, err, grid.ErrInvalidLayout)

	off := grid.Quadrant{Name: "off", Size: 2, Targets: []grid.TargetSpec{{Color: grid.Red, Shape: grid.Circle, X: 2, Y: 0}}}
	_, err = grid.Assemble([]grid.Quadrant{off, q, q, q})
	assert.ErrorIs(t, err, grid.ErrInvalidLayout)
}

func TestClassicBoard(t *testing.T) {
	b, err := grid.Classic()
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(16, b.Size())
	assert.Len(b.Targets(), 17)

	centre := []grid.Cell{{X: 7, Y: 7}, {X: 8, Y: 7}, {X: 7, Y: 8}, {X: 8, Y: 8}}
	for _, c := range centre {
		assert.True(b.Blocked(c), "centre cell %s", c)
	}
	assert.True(b.WallBetween(grid.Cell{X: 7, Y: 6}, grid.Cell{X: 7, Y: 7}))
	assert.True(b.WallBetween(grid.Cell{X: 9, Y: 7}, grid.Cell{X: 8, Y: 7}))
	assert.True(b.WallBetween(grid.Cell{X: 8, Y: 9}, grid.Cell{X: 8, Y: 8}))
	assert.True(b.WallBetween(grid.Cell{X: 6, Y: 8}, grid.Cell{X: 7, Y: 8}))

	wild := 0
	for _, tg := range b.Targets() {
		assert.False(b.Enclosed(tg.Cell))
		if tg.Color == grid.Any {
			wild++
		}
	}
	assert.Equal(1, wild)

	again, err := grid.Classic()
	require.NoError(t, err)
	assert.Same(b, again)
}
