// Package redisstore keeps credentials in a Redis hash, one hash per session namespace.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-session-client/credentials"
	"github.com/redis/go-redis/v9"
)

var _ credentials.KV = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	key    string
}

// New uses an existing client. The hash key is "session:<namespace>".
func New(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, key: "session:" + namespace}
}

// NewFromURL creates a client from a redis:// URL.
func NewFromURL(url, namespace string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), namespace), nil
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return value, true, nil
}

// SetAll writes every field with a single HSET.
func (r *RedisStore) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := r.client.HSet(ctx, r.key, fields).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.HDel(ctx, r.key, keys...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
