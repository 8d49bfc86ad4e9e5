package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/config"
)

const (
	responsePrefix = "idem:resp:"
	lockPrefix     = "idem:lock:"
)

// Response is a completed response kept for replay.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

type Store interface {
	// Get returns nil when nothing is stored under key.
	Get(ctx context.Context, key string) (*Response, error)
	// Lock reports false when another request already holds key.
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error
	Unlock(ctx context.Context, key string) error
}

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

type redisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) (*Response, error) {
	data, err := s.client.Get(ctx, responsePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("idempotency: failed to decode response: %w", err)
	}
	return &resp, nil
}

func (s *redisStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, lockPrefix+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: failed to acquire lock: %w", err)
	}
	return ok, nil
}

func (s *redisStore) Save(ctx context.Context, key string, resp *Response, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("idempotency: failed to encode response: %w", err)
	}
	if err := s.client.Set(ctx, responsePrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to store response: %w", err)
	}
	return nil
}

func (s *redisStore) Unlock(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, lockPrefix+key).Err(); err != nil {
		return fmt.Errorf("idempotency: failed to release lock: %w", err)
	}
	return nil
}
