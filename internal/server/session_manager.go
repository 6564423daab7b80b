package server

import (
	"context"
	"fmt"
	"sync"
)

// SessionInfo ties a bearer token to one seat in one room.
type SessionInfo struct {
	Token    string `json:"token"`
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

// SessionStore keeps tokens for as long as their room lives.
type SessionStore interface {
	StoreSession(ctx context.Context, info SessionInfo) error
	GetSession(ctx context.Context, token string) (SessionInfo, error)
	RemoveSession(ctx context.Context, token string) error
	// RemoveRoom drops every session of a room that no longer exists.
	RemoveRoom(ctx context.Context, roomCode string) error
	Close() error
}

type SessionManager struct {
	sessions map[string]SessionInfo        // token -> session
	byRoom   map[string]map[string]struct{} // room code -> tokens
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]SessionInfo),
		byRoom:   make(map[string]map[string]struct{}),
	}
}

func (sm *SessionManager) StoreSession(_ context.Context, info SessionInfo) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[info.Token] = info
	tokens, ok := sm.byRoom[info.RoomCode]
	if !ok {
		tokens = make(map[string]struct{})
		sm.byRoom[info.RoomCode] = tokens
	}
	tokens[info.Token] = struct{}{}
	return nil
}

func (sm *SessionManager) GetSession(_ context.Context, token string) (SessionInfo, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[token]
	if !exists {
		return SessionInfo{}, fmt.Errorf("%w: invalid session token", ErrTokenNotFound)
	}
	return session, nil
}

// Used for players who intentionally leave
func (sm *SessionManager) RemoveSession(_ context.Context, token string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if info, ok := sm.sessions[token]; ok {
		delete(sm.byRoom[info.RoomCode], token)
		if len(sm.byRoom[info.RoomCode]) == 0 {
			delete(sm.byRoom, info.RoomCode)
		}
	}
	delete(sm.sessions, token)
	return nil
}

func (sm *SessionManager) RemoveRoom(_ context.Context, roomCode string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for token := range sm.byRoom[roomCode] {
		delete(sm.sessions, token)
	}
	delete(sm.byRoom, roomCode)
	return nil
}

func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) Close() error { return nil }
