package ricochet

import (
	"time"

	"ricochet-server/internal/grid"
)

const (
	EventPlayerJoined        = "player_joined"
	EventPlayerLeft          = "player_left"
	EventPlayerConnected     = "player_connected"
	EventPlayerDisconnected  = "player_disconnected"
	EventHostChanged         = "host_changed"
	EventPhaseChanged        = "phase_changed"
	EventTargetRevealed      = "target_revealed"
	EventClaimAccepted       = "claim_accepted"
	EventVerificationStarted = "verification_started"
	EventClaimForfeited      = "claim_forfeited"
	EventRoundResolved       = "round_resolved"
	EventScoreboardUpdated   = "scoreboard_updated"
	EventGameOver            = "game_over"
	EventChat                = "chat"
)

// Event is a state change broadcast to everyone in the room.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

type PlayerPayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

type PhasePayload struct {
	Phase    Phase      `json:"phase"`
	Round    int        `json:"round"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type TargetPayload struct {
	Round  int         `json:"round"`
	Target grid.Target `json:"target"`
	Robots Positions   `json:"robots"`
}

type ClaimPayload struct {
	PlayerID string    `json:"playerId"`
	Moves    int       `json:"moves"`
	Deadline time.Time `json:"deadline"`
}

type ForfeitPayload struct {
	PlayerID string `json:"playerId"`
	Reason   string `json:"reason"`
}

type RoundPayload struct {
	Round    int         `json:"round"`
	Target   grid.Target `json:"target"`
	WinnerID string      `json:"winnerId,omitempty"`
	Moves    int         `json:"moves,omitempty"`
	Points   int         `json:"points,omitempty"`
	Solution []Move      `json:"solution,omitempty"`
	Robots   Positions   `json:"robots"`
}

type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
}

type ScoreboardPayload struct {
	Scores []ScoreEntry `json:"scores"`
}

type GameOverPayload struct {
	Rounds  int          `json:"rounds"`
	Winners []string     `json:"winners"`
	Scores  []ScoreEntry `json:"scores"`
}

type ChatPayload struct {
	PlayerID string    `json:"playerId"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}
