package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"ricochet-server/internal/config"
	"ricochet-server/internal/grid"
	"ricochet-server/internal/obslog"
	"ricochet-server/internal/registry"
)

const (
	sweepInterval         = time.Minute
	cleanupInterval       = 30 * time.Second
	idleConnectionTimeout = 2 * time.Minute
	resultRetention       = 30 * 24 * time.Hour
	resultCleanupInterval = time.Hour
	resultQueueSize       = 256
)

type Server struct {
	cfg            *config.AppConfig
	log            *zap.Logger
	registry       *registry.Registry
	sessions       SessionStore
	connections    *ConnectionManager
	limiter        *RateLimiter
	health         *ConnectionHealth
	persistence    *PersistenceManager
	recorder       *resultRecorder
	originPatterns []string

	stop         chan struct{}
	tasks        sync.WaitGroup
	shutdownOnce sync.Once
}

// Deps are the collaborators New wires together. Persistence is optional.
type Deps struct {
	Registry    *registry.Registry
	Sessions    SessionStore
	Persistence *PersistenceManager
	Logger      *zap.Logger
}

// New builds a Server around ready collaborators and starts its
// background tasks.
func New(cfg *config.AppConfig, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = obslog.L()
	}
	s := &Server{
		cfg:            cfg,
		log:            log,
		registry:       deps.Registry,
		sessions:       deps.Sessions,
		connections:    NewConnectionManager(),
		limiter:        NewRateLimiter(max(cfg.RateLimit, 1), time.Second),
		health:         NewConnectionHealth(),
		persistence:    deps.Persistence,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		stop:           make(chan struct{}),
	}

	s.registry.OnRoomRemoved(s.roomRemoved)
	if s.persistence != nil {
		s.recorder = newResultRecorder(s.persistence, log, resultQueueSize)
		s.registry.Observe(s.recorder.Observe)
	}

	s.tasks.Add(2)
	go s.sweepTask()
	go s.cleanupTask()
	return s
}

// NewServer wires the whole service from configuration: board, room
// registry, session store (Redis when REDIS_URL is set) and result
// persistence (Postgres when DATABASE_URL is set).
func NewServer(ctx context.Context, cfg *config.AppConfig) (*Server, *http.Server, error) {
	log := obslog.L()

	var board *grid.Board
	if cfg.LayoutFile != "" {
		b, err := grid.LoadLayoutFile(cfg.LayoutFile)
		if err != nil {
			return nil, nil, err
		}
		board = b
		log.Info("loaded board layout", zap.String("file", cfg.LayoutFile), zap.Int("size", b.Size()))
	}

	reg, err := registry.New(registry.Options{
		Board:      board,
		Config:     cfg.Game,
		IdleExpiry: cfg.RoomIdleExpiry,
		EmptyGrace: cfg.RoomEmptyGrace,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, err
	}

	var sessions SessionStore = NewSessionManager()
	if cfg.RedisURL != "" {
		rs, err := DialRedisSessionStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		sessions = rs
		log.Info("using redis session store")
	}

	var pm *PersistenceManager
	if cfg.DatabaseURL != "" {
		pm, err = NewPersistenceManager(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = sessions.Close()
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}

	s := New(cfg, Deps{Registry: reg, Sessions: sessions, Persistence: pm, Logger: log})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, httpServer, nil
}

// originPatterns turns configured origins into websocket host patterns.
func originPatterns(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

func (s *Server) roomRemoved(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sessions.RemoveRoom(ctx, code); err != nil {
		s.log.Warn("failed to drop room sessions", zap.String("room", code), zap.Error(err))
	}
}

// sweepTask removes rooms nobody ever connected to.
func (s *Server) sweepTask() {
	defer s.tasks.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.registry.Sweep(now)
		}
	}
}

// cleanupTask forgets stale rate-limit windows, closes idle websockets and
// prunes old results.
func (s *Server) cleanupTask() {
	defer s.tasks.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	lastResultCleanup := time.Now()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.limiter.Cleanup()
			s.reapIdleConnections()

			if s.persistence != nil && now.Sub(lastResultCleanup) >= resultCleanupInterval {
				lastResultCleanup = now
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				deleted, err := s.persistence.CleanupOldResults(ctx, resultRetention)
				cancel()
				if err != nil {
					s.log.Error("result cleanup failed", zap.Error(err))
				} else if deleted > 0 {
					s.log.Info("deleted old results", zap.Int64("rows", deleted))
				}
			}
		}
	}
}

func (s *Server) reapIdleConnections() {
	for _, id := range s.health.GetInactiveConnections(idleConnectionTimeout) {
		if pc := s.connections.GetConnection(id); pc != nil {
			s.log.Info("closing idle websocket", zap.String("conn", id), zap.String("room", pc.RoomCode))
			pc.Close(websocket.StatusPolicyViolation, "idle timeout")
		}
		s.health.RemoveConnection(id)
	}
}

// Shutdown tells every client the server is going away, stops all rooms
// and flushes pending results.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stop)
		s.tasks.Wait()

		s.connections.CloseAll(ctx,
			ServerMessage{Type: MsgServerShutdown, Payload: NoticePayload{Message: "Server is shutting down"}},
			websocket.StatusGoingAway, "server shutting down")
		s.registry.Close()

		if s.recorder != nil {
			s.recorder.Close()
		}
		if s.persistence != nil {
			s.persistence.Close()
		}
		err = s.sessions.Close()
		s.log.Info("server shut down")
	})
	return err
}
