package redis_session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohammad-safakhou/newschat/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chat:history:"

// Store keeps each session as a JSON-encoded turn list under one key with a
// TTL on the whole key, refreshed on every append.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Conn opens and pings a redis client.
func Conn(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed (%s): %w", addr, err)
	}
	return client, nil
}

// New builds a redis-backed session store with the given TTL.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func (s *Store) Create(ctx context.Context) (models.Session, error) {
	sess := models.Session{ID: uuid.NewString(), CreatedAt: time.Now()}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, "[]", s.ttl).Err(); err != nil {
		return models.Session{}, wrapErr("create session", err)
	}
	return sess, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, turn models.Turn) error {
	key := keyPrefix + sessionID
	val, err := s.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return wrapErr("load session", err)
	}
	var turns []models.Turn
	if val != "" {
		if err := json.Unmarshal([]byte(val), &turns); err != nil {
			return fmt.Errorf("decode session %s: %w", sessionID, err)
		}
	}
	turns = append(turns, turn)
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return wrapErr("store session", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	val, err := s.client.Get(ctx, keyPrefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("load session", err)
	}
	var turns []models.Turn
	if err := json.Unmarshal([]byte(val), &turns); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return turns, nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return wrapErr("clear session", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, wrapErr("scan sessions", err)
		}
		for _, key := range keys {
			ids = append(ids, key[len(keyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// wrapErr tags transport-level failures so callers can detect degraded
// stateless mode.
func wrapErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, models.ErrStoreUnavailable, err)
}
