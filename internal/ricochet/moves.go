package ricochet

import (
	"fmt"

	"ricochet-server/internal/grid"
)

// Positions maps each robot in play to its cell.
type Positions map[grid.Color]grid.Cell

func (p Positions) Clone() Positions {
	out := make(Positions, len(p))
	for c, cell := range p {
		out[c] = cell
	}
	return out
}

// RobotAt returns the robot standing on cell, if any.
func (p Positions) RobotAt(cell grid.Cell) (grid.Color, bool) {
	for c, at := range p {
		if at == cell {
			return c, true
		}
	}
	return "", false
}

type Move struct {
	Robot     grid.Color     `json:"robot"`
	Direction grid.Direction `json:"direction"`
}

func (m Move) String() string {
	return fmt.Sprintf("%s %s", m.Robot, m.Direction)
}

// ResolveMove slides robot in dir until a wall, the board edge, a blocked
// cell or another robot stops it, and returns where it comes to rest.
// Positions are not modified. A robot that cannot move at all gets its own
// cell back with no error; callers decide whether that is acceptable.
func ResolveMove(b *grid.Board, pos Positions, robot grid.Color, dir grid.Direction) (grid.Cell, error) {
	cur, ok := pos[robot]
	if !ok {
		return grid.Cell{}, fmt.Errorf("%w: %s", ErrUnknownRobot, robot)
	}
	if !dir.Valid() {
		return grid.Cell{}, fmt.Errorf("%w: %d", ErrInvalidDirection, dir)
	}

	for !b.HasWall(cur, dir) {
		next, _ := b.Neighbor(cur, dir)
		if b.Blocked(next) {
			break
		}
		if other, taken := pos.RobotAt(next); taken && other != robot {
			break
		}
		cur = next
	}
	return cur, nil
}
