package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ricochet-server/internal/registry"
)

const maxBodyBytes = 1 << 16

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	// Long-lived, so outside the request timeout.
	r.Get("/rooms/{code}/ws", s.websocketHandler)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))

		r.Get("/health", s.healthHandler)
		r.Get("/rooms", s.listRoomsHandler)
		r.Post("/rooms", s.createRoomHandler)
		r.Get("/rooms/{code}", s.roomHandler)
		r.Get("/rooms/{code}/state", s.roomStateHandler)
		r.Post("/rooms/{code}/join", s.joinRoomHandler)
		r.Get("/rooms/{code}/rounds", s.roomRoundsHandler)
		r.Get("/games/recent", s.recentGamesHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorMessage{Message: "no route for " + r.URL.Path, Code: "NOT_FOUND"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorMessage(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Rooms:       s.registry.Len(),
		Connections: s.connections.Count(),
	}
	if s.persistence != nil {
		resp.Database = "ok"
		if err := s.persistence.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoomList{Rooms: s.registry.Rooms()})
}

func (s *Server) roomHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.registry.Room(chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) roomStateHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Snapshot(chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := ValidateUsername(req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cfg := s.registry.Defaults()
	if req.Solo {
		cfg.MinPlayers = 1
	}
	if req.MaxRounds > 0 {
		cfg.MaxRounds = req.MaxRounds
	}
	if req.ScoreLimit > 0 {
		cfg.ScoreLimit = req.ScoreLimit
	}

	code, err := s.registry.CreateRoom(registry.Settings{Config: cfg, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ticket, err := s.seatPlayer(r, code, name, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) joinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name, err := ValidateUsername(req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ticket, err := s.seatPlayer(r, chi.URLParam(r, "code"), name, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// seatPlayer joins a fresh player to the room and issues their token.
func (s *Server) seatPlayer(r *http.Request, code, name, password string) (RoomTicket, error) {
	code = registry.NormalizeRoomCode(code)
	playerID := uuid.NewString()
	if err := s.registry.Join(code, playerID, name, password); err != nil {
		return RoomTicket{}, err
	}

	info := SessionInfo{Token: uuid.NewString(), RoomCode: code, PlayerID: playerID, Username: name}
	if err := s.sessions.StoreSession(r.Context(), info); err != nil {
		_ = s.registry.Dispatch(code, playerID, registry.Leave{})
		return RoomTicket{}, err
	}
	return RoomTicket{RoomCode: code, Token: info.Token, PlayerID: playerID}, nil
}

func (s *Server) roomRoundsHandler(w http.ResponseWriter, r *http.Request) {
	if s.persistence == nil {
		s.writeError(w, r, ErrNoPersistence)
		return
	}
	code := registry.NormalizeRoomCode(chi.URLParam(r, "code"))
	rounds, err := s.persistence.RoomRounds(r.Context(), code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomCode": code, "rounds": nonNil(rounds)})
}

func (s *Server) recentGamesHandler(w http.ResponseWriter, r *http.Request) {
	if s.persistence == nil {
		s.writeError(w, r, ErrNoPersistence)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be 1-100", ErrInvalidPayload))
			return
		}
		limit = n
	}
	games, err := s.persistence.RecentGames(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": games})
}
