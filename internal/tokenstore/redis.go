package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis namespaces keys per profile so several sessions can share one server.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, profile string, ttl time.Duration) *Redis {
	if profile == "" {
		profile = "default"
	}
	return &Redis{
		client: client,
		prefix: fmt.Sprintf("collectdesk:tokens:%s:", profile),
		ttl:    ttl,
	}
}

func (r *Redis) key(k Key) string {
	return r.prefix + string(k)
}

func (r *Redis) Get(ctx context.Context, key Key) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, values map[Key]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, r.key(k), v, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set tokens: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, r.key(k))
	}
	if err := r.client.Del(ctx, names...).Err(); err != nil {
		return fmt.Errorf("redis delete tokens: %w", err)
	}
	return nil
}
