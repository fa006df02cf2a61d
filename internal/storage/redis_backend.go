package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores documents as plain string values under <prefix>doc:<key>.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a new Redis storage backend
func NewRedisBackend(addr, password string, db int, prefix string) (*RedisBackend, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if prefix == "" {
		prefix = "geminivoice:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (r *RedisBackend) Name() string { return "redis" }

// Initialize tests Redis connection
func (r *RedisBackend) Initialize(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes Redis connection
func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) key(key string) string { return r.prefix + "doc:" + key }

func (r *RedisBackend) GetDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &ErrNotFound{Key: key}
		}
		return nil, err
	}
	return data, nil
}

// PutDocument also records the write time in a side hash for operators inspecting Redis.
func (r *RedisBackend) PutDocument(ctx context.Context, key string, data []byte) error {
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(key), data, 0)
	pipe.HSet(ctx, r.prefix+"doc_updated", key, time.Now().UTC().Format(time.RFC3339Nano))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisBackend) DeleteDocument(ctx context.Context, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key(key))
	pipe.HDel(ctx, r.prefix+"doc_updated", key)
	_, err := pipe.Exec(ctx)
	return err
}
