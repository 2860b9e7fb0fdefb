// Package store keeps last-known gateway state in Redis.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config selects the Redis instance.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store wraps a Redis client for JSON value keeping. Values have no
// TTL; the store holds the latest state, not history, except for
// explicitly capped lists.
type Store struct {
	client *redis.Client
}

// New connects and verifies the instance is reachable.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PutJSON stores v marshaled under key, replacing any previous value.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, 0).Err()
}

// GetJSON loads key into v. A missing key returns redis.Nil.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// AppendJSON pushes v onto the list at key and trims it to limit
// entries, newest first.
func (s *Store) AppendJSON(ctx context.Context, key string, v any, limit int64) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, limit-1)
	_, err = pipe.Exec(ctx)
	return err
}
