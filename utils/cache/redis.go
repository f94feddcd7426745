// Package cache wraps go-redis for the progress broker: JSON values with a
// TTL plus pub/sub fan-out
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("key not found in cache")

const dialTimeout = 5 * time.Second

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL and fails fast when it is unreachable
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return NewRedisCacheWithClient(client), nil
}

func NewRedisCacheWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// GetJSON decodes the value at key into dest, or returns ErrNotFound
func (r *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetAndPublishJSON stores value under key and publishes it on channel in
// one MULTI/EXEC, so a subscriber that reads key after subscribing never
// sees an older value than the last message it received
func (r *RedisCache) SetAndPublishJSON(ctx context.Context, key, channel string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttl)
		pipe.Publish(ctx, channel, data)
		return nil
	})
	return err
}

// Subscribe returns once the server has confirmed the subscription. The
// caller must Close it.
func (r *RedisCache) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	sub := r.client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
