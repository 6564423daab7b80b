package server

import (
	"fmt"

	"ricochet-server/internal/grid"
	"ricochet-server/internal/registry"
	"ricochet-server/internal/ricochet"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// CREATE ROOM (POST /rooms)
// ============================================================================
type CreateRoomRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	// Solo rooms start with a single connected player.
	Solo       bool `json:"solo,omitempty"`
	MaxRounds  int  `json:"maxRounds,omitempty"`
	ScoreLimit int  `json:"scoreLimit,omitempty"`
}

// RoomTicket is returned by create and join: the token authenticates the
// websocket for this room.
type RoomTicket struct {
	RoomCode string `json:"roomCode"`
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
}

// ============================================================================
// JOIN ROOM (POST /rooms/{code}/join)
// ============================================================================
type JoinRoomRequest struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

// ============================================================================
// LISTINGS
// ============================================================================
type RoomList struct {
	Rooms []registry.Summary `json:"rooms"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	Database    string `json:"database,omitempty"`
}

// ============================================================================
// WEBSOCKET PAYLOADS
// ============================================================================
type WelcomePayload struct {
	RoomCode string            `json:"roomCode"`
	PlayerID string            `json:"playerId"`
	Snapshot ricochet.Snapshot `json:"snapshot"`
}

type ClaimRequest struct {
	Moves int `json:"moves"`
}

// MoveRequest keeps the direction as text so a bad one is reported as
// INVALID_DIRECTION rather than a malformed payload.
type MoveRequest struct {
	Robot     grid.Color `json:"robot"`
	Direction string     `json:"direction"`
}

type SolutionRequest struct {
	Moves []MoveRequest `json:"moves"`
}

func (req SolutionRequest) toMoves() ([]ricochet.Move, error) {
	moves := make([]ricochet.Move, 0, len(req.Moves))
	for i, m := range req.Moves {
		dir, err := grid.ParseDirection(m.Direction)
		if err != nil {
			return nil, fmt.Errorf("%w: move %d: %v", ricochet.ErrInvalidDirection, i+1, err)
		}
		moves = append(moves, ricochet.Move{Robot: m.Robot, Direction: dir})
	}
	return moves, nil
}

type ChatRequest struct {
	Text string `json:"text"`
}

type ActionResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
}

type NoticePayload struct {
	Message string `json:"message"`
}
