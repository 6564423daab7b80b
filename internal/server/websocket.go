package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ricochet-server/internal/registry"
)

const tokenCookie = "token"

// tokenFromRequest reads the session token from the Authorization header,
// the token cookie or the token query parameter, in that order.
func tokenFromRequest(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(tokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	code := registry.NormalizeRoomCode(chi.URLParam(r, "code"))

	token := tokenFromRequest(r)
	if token == "" {
		s.writeError(w, r, fmt.Errorf("%w: missing session token", ErrUnauthorized))
		return
	}
	session, err := s.sessions.GetSession(r.Context(), token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if session.RoomCode != code {
		s.writeError(w, r, fmt.Errorf("%w: token belongs to room %s", ErrWrongRoom, session.RoomCode))
		return
	}
	if _, err := s.registry.Room(code); err != nil {
		s.writeError(w, r, err)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.String("room", code), zap.Error(err))
		return
	}
	defer socket.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pc := &PlayerConnection{
		ID:       uuid.NewString(),
		RoomCode: code,
		PlayerID: session.PlayerID,
		Token:    token,
		conn:     socket,
	}
	log := s.log.With(zap.String("room", code), zap.String("player", session.PlayerID), zap.String("conn", pc.ID))

	s.connections.AddConnection(pc)
	s.health.UpdateActivity(pc.ID)
	defer func() {
		s.connections.RemoveConnection(pc.ID)
		s.limiter.RemoveConnection(pc.ID)
		s.health.RemoveConnection(pc.ID)
	}()

	sub, err := s.registry.Connect(code, session.PlayerID)
	if err != nil {
		s.sendError(ctx, pc, err)
		pc.Close(websocket.StatusPolicyViolation, reasonCode(err))
		return
	}
	log.Info("websocket connected")

	welcome := ServerMessage{
		Type:    MsgWelcome,
		Payload: WelcomePayload{RoomCode: code, PlayerID: session.PlayerID, Snapshot: sub.Snapshot},
	}
	if err := pc.Send(ctx, welcome); err != nil {
		sub.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.pumpEvents(ctx, pc, sub, log)
	}()

	s.readLoop(ctx, pc, log)

	sub.Close()
	cancel()
	<-writerDone
	log.Info("websocket disconnected")
}

// pumpEvents forwards room events until the subscription ends, then closes
// the socket according to why it ended. A leave is closed by readLoop once
// the result is sent.
func (s *Server) pumpEvents(ctx context.Context, pc *PlayerConnection, sub *registry.Subscription, log *zap.Logger) {
	for e := range sub.Events() {
		if err := pc.Send(ctx, ServerMessage{Type: e.Type, Payload: e.Payload}); err != nil {
			log.Debug("event write failed", zap.String("event", e.Type), zap.Error(err))
			pc.Close(websocket.StatusInternalError, "write failed")
			return
		}
	}

	switch sub.Reason() {
	case registry.ReasonReplaced:
		_ = pc.Send(ctx, ServerMessage{
			Type:    MsgDisconnectedElsewhere,
			Payload: NoticePayload{Message: "You connected on another device"},
		})
		pc.Close(websocket.StatusNormalClosure, "connected from another device")
	case registry.ReasonOverflow:
		log.Warn("client too slow, closing")
		pc.Close(websocket.StatusTryAgainLater, "too slow")
	case registry.ReasonRoomClosed:
		_ = pc.Send(ctx, ServerMessage{Type: MsgRoomClosed, Payload: NoticePayload{Message: "The room was closed"}})
		pc.Close(websocket.StatusGoingAway, "room closed")
	}
}

func (s *Server) readLoop(ctx context.Context, pc *PlayerConnection, log *zap.Logger) {
	for {
		msgType, data, err := pc.conn.Read(ctx)
		if err != nil {
			log.Debug("websocket read ended", zap.Error(err))
			return
		}
		s.health.UpdateActivity(pc.ID)

		if msgType != websocket.MessageText {
			continue
		}
		if !s.limiter.Allow(pc.ID) {
			s.sendError(ctx, pc, fmt.Errorf("%w: slow down", ErrRateLimited))
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(ctx, pc, fmt.Errorf("%w: invalid JSON", ErrInvalidPayload))
			continue
		}
		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(ctx, pc, err)
			continue
		}
		if msg.Type == MsgPing {
			_ = pc.Send(ctx, ServerMessage{Type: MsgPong, Payload: struct{}{}})
			continue
		}

		act, err := decodeAction(msg)
		if err != nil {
			s.sendError(ctx, pc, err)
			continue
		}
		if err := s.registry.Dispatch(pc.RoomCode, pc.PlayerID, act); err != nil {
			s.sendError(ctx, pc, err)
			if errors.Is(err, registry.ErrRoomNotFound) {
				return
			}
			continue
		}

		_ = pc.Send(ctx, ServerMessage{Type: MsgActionResult, Payload: ActionResult{Action: msg.Type, OK: true}})
		if msg.Type == MsgLeave {
			if err := s.sessions.RemoveSession(ctx, pc.Token); err != nil {
				log.Warn("failed to remove session", zap.Error(err))
			}
			pc.Close(websocket.StatusNormalClosure, "left room")
			return
		}
	}
}

func decodeAction(msg ClientMessage) (registry.Action, error) {
	switch msg.Type {
	case MsgClaim:
		var req ClaimRequest
		if err := unmarshalPayload(msg.Payload, &req); err != nil {
			return nil, err
		}
		return registry.Claim{Moves: req.Moves}, nil
	case MsgSolution:
		var req SolutionRequest
		if err := unmarshalPayload(msg.Payload, &req); err != nil {
			return nil, err
		}
		moves, err := req.toMoves()
		if err != nil {
			return nil, err
		}
		return registry.SubmitSolution{Moves: moves}, nil
	case MsgChat:
		var req ChatRequest
		if err := unmarshalPayload(msg.Payload, &req); err != nil {
			return nil, err
		}
		return registry.Chat{Text: req.Text}, nil
	case MsgLeave:
		return registry.Leave{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidMessageType, msg.Type)
}

func unmarshalPayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (s *Server) sendError(ctx context.Context, pc *PlayerConnection, err error) {
	if sendErr := pc.Send(ctx, ServerMessage{Type: MsgError, Payload: errorMessage(err)}); sendErr != nil {
		s.log.Debug("failed to send error", zap.String("conn", pc.ID), zap.Error(sendErr))
	}
}
