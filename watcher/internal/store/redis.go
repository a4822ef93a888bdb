package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/statuswatch/statuswatch/pkg/types"
	"github.com/statuswatch/statuswatch/watcher/internal/config"
)

// Redis stores the state as one JSON string. SET replaces the value
// atomically.
type Redis struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to the configured server and verifies it with PING.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, ioErr("redis", "open", fmt.Errorf("ping %s: %w", cfg.Addr, err))
	}
	return NewRedis(client, cfg.Key), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Load returns the stored state, or an empty state if the key is absent.
func (r *Redis) Load(ctx context.Context) (types.ObservedState, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.EmptyState(), nil
	}
	if err != nil {
		return types.ObservedState{}, ioErr("redis", "load", err)
	}
	state, err := decode(data)
	if err != nil {
		return types.ObservedState{}, ioErr("redis", "load", fmt.Errorf("decode key %s: %w", r.key, err))
	}
	return state, nil
}

// Save replaces the value under the key. The key never expires.
func (r *Redis) Save(ctx context.Context, state types.ObservedState) error {
	data, err := encode(state)
	if err != nil {
		return ioErr("redis", "save", err)
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return ioErr("redis", "save", err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
