package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"ricochet-server/internal/grid"
	"ricochet-server/internal/ricochet"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PersistenceManager stores finished rounds and games in Postgres. Live
// room state is never persisted.
type PersistenceManager struct {
	pool *pgxpool.Pool
}

// NewPersistenceManager connects and applies pending migrations.
func NewPersistenceManager(ctx context.Context, databaseURL string) (*PersistenceManager, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := runMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PersistenceManager{pool: pool}, nil
}

// runMigrations applies the embedded migrations using goose
func runMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (pm *PersistenceManager) Ping(ctx context.Context) error { return pm.pool.Ping(ctx) }

func (pm *PersistenceManager) Close() { pm.pool.Close() }

type RoundRecord struct {
	RoomCode   string          `json:"roomCode"`
	Round      int             `json:"round"`
	Target     grid.Target     `json:"target"`
	WinnerID   string          `json:"winnerId,omitempty"`
	Moves      int             `json:"moves,omitempty"`
	Points     int             `json:"points,omitempty"`
	Solution   []ricochet.Move `json:"solution,omitempty"`
	ResolvedAt time.Time       `json:"resolvedAt"`
}

type GameRecord struct {
	RoomCode   string                `json:"roomCode"`
	Rounds     int                   `json:"rounds"`
	Winners    []string              `json:"winners"`
	Scores     []ricochet.ScoreEntry `json:"scores"`
	FinishedAt time.Time             `json:"finishedAt"`
}

// SaveRound records a resolved round. Void rounds have no winner.
func (pm *PersistenceManager) SaveRound(ctx context.Context, roomCode string, r ricochet.RoundPayload) error {
	var solution []byte
	if len(r.Solution) > 0 {
		raw, err := json.Marshal(r.Solution)
		if err != nil {
			return fmt.Errorf("failed to serialize solution: %w", err)
		}
		solution = raw
	}

	_, err := pm.pool.Exec(ctx, `
		INSERT INTO rounds (room_code, round, target_color, target_shape, target_x, target_y,
		                    winner_id, moves, points, solution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		roomCode, r.Round,
		string(r.Target.Color), string(r.Target.Shape), r.Target.Cell.X, r.Target.Cell.Y,
		r.WinnerID, r.Moves, r.Points, solution,
	)
	if err != nil {
		return fmt.Errorf("failed to save round %d of %s: %w", r.Round, roomCode, err)
	}
	return nil
}

// RoomRounds lists the recorded rounds of a room in play order.
func (pm *PersistenceManager) RoomRounds(ctx context.Context, roomCode string) ([]RoundRecord, error) {
	rows, err := pm.pool.Query(ctx, `
		SELECT round, target_color, target_shape, target_x, target_y,
		       winner_id, moves, points, solution, resolved_at
		FROM rounds WHERE room_code = $1 ORDER BY round, id`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		rec := RoundRecord{RoomCode: roomCode}
		var color, shape string
		var solution []byte
		if err := rows.Scan(&rec.Round, &color, &shape, &rec.Target.Cell.X, &rec.Target.Cell.Y,
			&rec.WinnerID, &rec.Moves, &rec.Points, &solution, &rec.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan round row: %w", err)
		}
		rec.Target.Color = grid.Color(color)
		rec.Target.Shape = grid.Shape(shape)
		if len(solution) > 0 {
			if err := json.Unmarshal(solution, &rec.Solution); err != nil {
				return nil, fmt.Errorf("failed to deserialize solution: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating round rows: %w", err)
	}
	return out, nil
}

func (pm *PersistenceManager) SaveGame(ctx context.Context, roomCode string, g ricochet.GameOverPayload) error {
	winners, err := json.Marshal(nonNil(g.Winners))
	if err != nil {
		return fmt.Errorf("failed to serialize winners: %w", err)
	}
	scores, err := json.Marshal(nonNil(g.Scores))
	if err != nil {
		return fmt.Errorf("failed to serialize scores: %w", err)
	}

	_, err = pm.pool.Exec(ctx,
		`INSERT INTO games (room_code, rounds, winners, scores) VALUES ($1, $2, $3, $4)`,
		roomCode, g.Rounds, winners, scores)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", roomCode, err)
	}
	return nil
}

// RecentGames returns the latest finished games, newest first.
func (pm *PersistenceManager) RecentGames(ctx context.Context, limit int) ([]GameRecord, error) {
	rows, err := pm.pool.Query(ctx, `
		SELECT room_code, rounds, winners, scores, finished_at
		FROM games ORDER BY finished_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	out := []GameRecord{}
	for rows.Next() {
		var rec GameRecord
		var winners, scores []byte
		if err := rows.Scan(&rec.RoomCode, &rec.Rounds, &winners, &scores, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		if err := json.Unmarshal(winners, &rec.Winners); err != nil {
			return nil, fmt.Errorf("failed to deserialize winners: %w", err)
		}
		if err := json.Unmarshal(scores, &rec.Scores); err != nil {
			return nil, fmt.Errorf("failed to deserialize scores: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}
	return out, nil
}

// CleanupOldResults deletes rounds and games recorded before the cutoff.
func (pm *PersistenceManager) CleanupOldResults(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	tx, err := pm.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rounds, err := tx.Exec(ctx, `DELETE FROM rounds WHERE resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rounds: %w", err)
	}
	games, err := tx.Exec(ctx, `DELETE FROM games WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup games: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}
	return rounds.RowsAffected() + games.RowsAffected(), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// resultStore is what the recorder writes to.
type resultStore interface {
	SaveRound(ctx context.Context, roomCode string, r ricochet.RoundPayload) error
	SaveGame(ctx context.Context, roomCode string, g ricochet.GameOverPayload) error
}

type roomResult struct {
	code  string
	event ricochet.Event
}

// resultRecorder moves round and game results off the room goroutines and
// writes them one at a time. Results arriving while the queue is full are
// dropped with a warning.
type resultRecorder struct {
	store resultStore
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan roomResult
	done   chan struct{}
}

func newResultRecorder(store resultStore, log *zap.Logger, buffer int) *resultRecorder {
	rr := &resultRecorder{
		store: store,
		log:   log,
		jobs:  make(chan roomResult, buffer),
		done:  make(chan struct{}),
	}
	go rr.run()
	return rr
}

// Observe is registered with the room registry.
func (rr *resultRecorder) Observe(code string, e ricochet.Event) {
	if e.Type != ricochet.EventRoundResolved && e.Type != ricochet.EventGameOver {
		return
	}
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	if rr.closed {
		return
	}
	select {
	case rr.jobs <- roomResult{code: code, event: e}:
	default:
		rr.log.Warn("result queue full, dropping", zap.String("room", code), zap.String("event", e.Type))
	}
}

func (rr *resultRecorder) run() {
	defer close(rr.done)
	for job := range rr.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var err error
		switch p := job.event.Payload.(type) {
		case ricochet.RoundPayload:
			err = rr.store.SaveRound(ctx, job.code, p)
		case ricochet.GameOverPayload:
			err = rr.store.SaveGame(ctx, job.code, p)
		}
		cancel()
		if err != nil {
			rr.log.Error("failed to record result", zap.String("room", job.code), zap.String("event", job.event.Type), zap.Error(err))
		}
	}
}

// Close drains queued results and stops the writer.
func (rr *resultRecorder) Close() {
	rr.mu.Lock()
	if rr.closed {
		rr.mu.Unlock()
		return
	}
	rr.closed = true
	close(rr.jobs)
	rr.mu.Unlock()
	<-rr.done
}
