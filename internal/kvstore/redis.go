package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis backs the store with a Redis server, for deployments where several
// instances share one cache.
type Redis struct {
	client *redis.Client
}

// OpenRedis parses a Redis URL (e.g. "redis://host:6379/0") and returns a
// connected store. The connection is verified lazily on first use; call Ping
// to check eagerly.
func OpenRedis(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

// Close shuts down the client.
func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) GetString(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("kv get %q: %w", key, err)
	}
	return v, nil
}

func (r *Redis) SetString(ctx context.Context, key, value string) error {
	// No Redis-side TTL: staleness is the cache layer's decision, and an
	// evicted-but-stale snapshot is still wanted for fallback serving.
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv set %q: %w", key, err)
	}
	return nil
}

func (r *Redis) GetJSON(ctx context.Context, key string, dst any) error {
	v, err := r.GetString(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(v), dst)
}

func (r *Redis) SetJSON(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv marshal %q: %w", key, err)
	}
	return r.SetString(ctx, key, string(b))
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv delete %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("kv has %q: %w", key, err)
	}
	return n > 0, nil
}
