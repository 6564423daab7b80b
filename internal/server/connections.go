package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

// PlayerConnection is one open websocket bound to a seat.
type PlayerConnection struct {
	ID       string
	RoomCode string
	PlayerID string
	Token    string

	conn *websocket.Conn
}

// Send writes one envelope, bounded by writeTimeout.
func (pc *PlayerConnection) Send(ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return pc.conn.Write(ctx, websocket.MessageText, data)
}

func (pc *PlayerConnection) Close(code websocket.StatusCode, reason string) {
	_ = pc.conn.Close(code, reason)
}

type ConnectionManager struct {
	connections map[string]*PlayerConnection // connectionID -> connection
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*PlayerConnection),
	}
}

func (cm *ConnectionManager) AddConnection(pc *PlayerConnection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[pc.ID] = pc
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
}

func (cm *ConnectionManager) GetConnection(id string) *PlayerConnection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[id]
}

// RoomConnections returns the open sockets of one room.
func (cm *ConnectionManager) RoomConnections(roomCode string) []*PlayerConnection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var out []*PlayerConnection
	for _, pc := range cm.connections {
		if pc.RoomCode == roomCode {
			out = append(out, pc)
		}
	}
	return out
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// CloseAll sends msg to every open socket and closes them all.
func (cm *ConnectionManager) CloseAll(ctx context.Context, msg ServerMessage, code websocket.StatusCode, reason string) {
	cm.mu.RLock()
	conns := make([]*PlayerConnection, 0, len(cm.connections))
	for _, pc := range cm.connections {
		conns = append(conns, pc)
	}
	cm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, pc := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pc.Send(ctx, msg)
			pc.Close(code, reason)
		}()
	}
	wg.Wait()
}
