package redisad

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"reviewflow/internal/adapters/observability"
)

// Fixed keys for the persisted provider state. The refresh token is stored
// for completeness but never exchanged by this service.
const (
	providerTokenKey = "google_provider_token"
	refreshTokenKey  = "google_refresh_token"
)

// Store is the redis-backed token store and JSON cache.
type Store struct{ c *redis.Client }

func New(addr, pass string, db int) *Store {
	return &Store{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

// NewFromClient wraps an existing client (tests).
func NewFromClient(c *redis.Client) *Store { return &Store{c: c} }

// ---- token store ----

func (s *Store) Provider(ctx context.Context) (string, bool, error) {
	v, err := s.c.Get(ctx, providerTokenKey).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (s *Store) Save(ctx context.Context, providerToken, refreshToken string) error {
	if err := s.c.Set(ctx, providerTokenKey, providerToken, 0).Err(); err != nil {
		return err
	}
	if refreshToken == "" {
		return nil
	}
	return s.c.Set(ctx, refreshTokenKey, refreshToken, 0).Err()
}

// Clear drops both token keys. Called on disconnect and on classified
// auth expiry so no further fetch runs with a dead token.
func (s *Store) Clear(ctx context.Context) error {
	return s.c.Del(ctx, providerTokenKey, refreshTokenKey).Err()
}

// ---- JSON cache ----

func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := s.c.Get(ctx, key).Bytes()
	if err == redis.Nil {
		observability.ObserveCache("redis", "miss")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	observability.ObserveCache("redis", "hit")
	return true, json.Unmarshal(v, dst)
}

func (s *Store) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	observability.ObserveCache("redis", "set")
	return s.c.Set(ctx, key, b, time.Duration(ttlSec)*time.Second).Err()
}

func (s *Store) Del(ctx context.Context, key string) error {
	observability.ObserveCache("redis", "del")
	return s.c.Del(ctx, key).Err()
}
