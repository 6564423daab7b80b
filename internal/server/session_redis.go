package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultSessionTTL = 24 * time.Hour

// RedisSessionStore keeps sessions in Redis so they survive a restart of
// the websocket front end. Keys:
//
//	ricochet:session:<token>        JSON SessionInfo
//	ricochet:room:<code>:sessions   set of tokens
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

// DialRedisSessionStore connects to a redis:// URL and checks it answers.
func DialRedisSessionStore(ctx context.Context, url string) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSessionStore(rdb, 0), nil
}

func (s *RedisSessionStore) keySession(token string) string { return "ricochet:session:" + token }
func (s *RedisSessionStore) keyRoom(code string) string     { return "ricochet:room:" + code + ":sessions" }

func (s *RedisSessionStore) StoreSession(ctx context.Context, info SessionInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.keySession(info.Token), raw, s.ttl)
		p.SAdd(ctx, s.keyRoom(info.RoomCode), info.Token)
		p.Expire(ctx, s.keyRoom(info.RoomCode), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) GetSession(ctx context.Context, token string) (SessionInfo, error) {
	raw, err := s.rdb.Get(ctx, s.keySession(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return SessionInfo{}, fmt.Errorf("%w: invalid session token", ErrTokenNotFound)
	}
	if err != nil {
		return SessionInfo{}, fmt.Errorf("load session: %w", err)
	}
	var info SessionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("decode session: %w", err)
	}
	return info, nil
}

func (s *RedisSessionStore) RemoveSession(ctx context.Context, token string) error {
	info, err := s.GetSession(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.keySession(token))
		p.SRem(ctx, s.keyRoom(info.RoomCode), token)
		return nil
	})
	return err
}

func (s *RedisSessionStore) RemoveRoom(ctx context.Context, roomCode string) error {
	tokens, err := s.rdb.SMembers(ctx, s.keyRoom(roomCode)).Result()
	if err != nil {
		return fmt.Errorf("list room sessions: %w", err)
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, s.keySession(t))
	}
	keys = append(keys, s.keyRoom(roomCode))
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisSessionStore) Close() error { return s.rdb.Close() }
