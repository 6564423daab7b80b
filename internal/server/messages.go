package server

import "encoding/json"

// Client message types.
const (
	MsgPing     = "ping"
	MsgClaim    = "claim"
	MsgSolution = "solution"
	MsgChat     = "chat"
	MsgLeave    = "leave"
)

// Server message types not already covered by room events.
const (
	MsgWelcome               = "welcome"
	MsgPong                  = "pong"
	MsgError                 = "error"
	MsgActionResult          = "action_result"
	MsgDisconnectedElsewhere = "disconnected_elsewhere"
	MsgRoomClosed            = "room_closed"
	MsgServerShutdown        = "server_shutdown"
)

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
