package ricochet

import (
	"fmt"

	"ricochet-server/internal/grid"
)

type Verdict struct {
	ReachesTarget  bool      `json:"reachesTarget"`
	FinalPositions Positions `json:"finalPositions"`
	MoveCount      int       `json:"moveCount"`
}

// Validate replays seq from start on a scratch copy. Any move that leaves
// its robot where it was rejects the whole sequence with ErrDegenerateMove.
// The target counts as reached only when, after the last move, a matching
// robot stands on it.
func Validate(b *grid.Board, start Positions, target grid.Target, seq []Move) (Verdict, error) {
	if len(seq) == 0 {
		return Verdict{}, ErrEmptySolution
	}

	pos := start.Clone()
	for i, m := range seq {
		from, ok := pos[m.Robot]
		if !ok {
			return Verdict{}, fmt.Errorf("%w: move %d names %s", ErrUnknownRobot, i+1, m.Robot)
		}
		to, err := ResolveMove(b, pos, m.Robot, m.Direction)
		if err != nil {
			return Verdict{}, fmt.Errorf("move %d: %w", i+1, err)
		}
		if to == from {
			return Verdict{}, fmt.Errorf("%w: move %d (%s) goes nowhere", ErrDegenerateMove, i+1, m)
		}
		pos[m.Robot] = to
	}

	v := Verdict{FinalPositions: pos, MoveCount: len(seq)}
	if robot, ok := pos.RobotAt(target.Cell); ok && target.Matches(robot) {
		v.ReachesTarget = true
	}
	return v, nil
}
