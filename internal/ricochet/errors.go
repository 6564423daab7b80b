package ricochet

import "errors"

// Error text is the reason code sent to clients; details are appended with
// fmt.Errorf("%w: ...").
var (
	ErrUnknownRobot         = errors.New("UNKNOWN_ROBOT")
	ErrInvalidDirection     = errors.New("INVALID_DIRECTION")
	ErrDegenerateMove       = errors.New("DEGENERATE_MOVE")
	ErrEmptySolution        = errors.New("EMPTY_SOLUTION")
	ErrInvalidPhaseAction   = errors.New("INVALID_PHASE_ACTION")
	ErrClaimTooHigh         = errors.New("CLAIM_TOO_HIGH")
	ErrInvalidClaim         = errors.New("INVALID_CLAIM")
	ErrVerificationFailed   = errors.New("VERIFICATION_FAILED")
	ErrVerificationTimedOut = errors.New("VERIFICATION_TIMED_OUT")

	ErrPlayerNotInRoom = errors.New("PLAYER_NOT_IN_ROOM")
	ErrPlayerExists    = errors.New("PLAYER_EXISTS")
	ErrUsernameTaken   = errors.New("USERNAME_TAKEN")
	ErrRoomFull        = errors.New("ROOM_FULL")
	ErrInvalidMessage  = errors.New("INVALID_MESSAGE")
)
