package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cepachat:session:"

// RedisOptions configures the Redis pointer store
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// Redis stores the pointer under a single Redis key
type Redis struct {
	inner *redis.Client
	key   string
}

// OpenRedis connects and pings the server
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	if opts.Key == "" {
		return nil, errors.New("redis store key required")
	}
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &Redis{inner: client, key: redisKeyPrefix + opts.Key}, nil
}

func (r *Redis) Get(ctx context.Context) (string, error) {
	id, err := r.inner.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load session pointer: %w", err)
	}
	return id, nil
}

func (r *Redis) Set(ctx context.Context, id string) error {
	if err := r.inner.Set(ctx, r.key, id, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session pointer: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.inner.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear session pointer: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.inner.Close()
}
