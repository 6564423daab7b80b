package server

import (
	"errors"
	"net/http"

	"ricochet-server/internal/grid"
	"ricochet-server/internal/registry"
	"ricochet-server/internal/ricochet"
)

var (
	ErrTokenNotFound      = errors.New("TOKEN_NOT_FOUND")
	ErrUnauthorized       = errors.New("UNAUTHORIZED")
	ErrInvalidUsername    = errors.New("USERNAME_INVALID")
	ErrInvalidMessageType = errors.New("INVALID_MESSAGE_TYPE")
	ErrInvalidPayload     = errors.New("INVALID_PAYLOAD")
	ErrRateLimited        = errors.New("RATE_LIMITED")
	ErrWrongRoom          = errors.New("WRONG_ROOM")
	ErrNoPersistence      = errors.New("PERSISTENCE_DISABLED")
)

// errorStatus lists every sentinel a client can see, with the HTTP status
// it maps to. Order matters only for errors wrapping more than one.
var errorStatus = []struct {
	err    error
	status int
}{
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrTokenNotFound, http.StatusUnauthorized},
	{registry.ErrIncorrectPassword, http.StatusForbidden},
	{ErrWrongRoom, http.StatusForbidden},
	{registry.ErrRoomNotFound, http.StatusNotFound},
	{ricochet.ErrPlayerNotInRoom, http.StatusNotFound},
	{ricochet.ErrRoomFull, http.StatusConflict},
	{ricochet.ErrUsernameTaken, http.StatusConflict},
	{ricochet.ErrPlayerExists, http.StatusConflict},
	{ricochet.ErrInvalidPhaseAction, http.StatusConflict},
	{ricochet.ErrClaimTooHigh, http.StatusConflict},
	{ricochet.ErrVerificationFailed, http.StatusUnprocessableEntity},
	{ricochet.ErrVerificationTimedOut, http.StatusConflict},
	{ricochet.ErrUnknownRobot, http.StatusBadRequest},
	{ricochet.ErrInvalidDirection, http.StatusBadRequest},
	{ricochet.ErrDegenerateMove, http.StatusBadRequest},
	{ricochet.ErrEmptySolution, http.StatusBadRequest},
	{ricochet.ErrInvalidClaim, http.StatusBadRequest},
	{ricochet.ErrInvalidMessage, http.StatusBadRequest},
	{grid.ErrInvalidLayout, http.StatusBadRequest},
	{ErrInvalidUsername, http.StatusBadRequest},
	{ErrInvalidMessageType, http.StatusBadRequest},
	{ErrInvalidPayload, http.StatusBadRequest},
	{ErrRateLimited, http.StatusTooManyRequests},
	{registry.ErrClosed, http.StatusServiceUnavailable},
	{ErrNoPersistence, http.StatusServiceUnavailable},
}

// reasonCode is the stable code clients switch on.
func reasonCode(err error) string {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.err.Error()
		}
	}
	return "INTERNAL_ERROR"
}

func httpStatus(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{Message: err.Error(), Code: reasonCode(err)}
}
