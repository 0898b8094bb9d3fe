package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is a FastTier backed by Redis string values.
type RedisTier struct {
	client *redis.Client
}

// RedisOptions holds connection settings for NewRedisTier.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisTier connects to Redis. The connection is lazy; call Ping to check it.
func NewRedisTier(opts RedisOptions) *RedisTier {
	return &RedisTier{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisTier) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping checks connectivity.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisTier) Close() error {
	return r.client.Close()
}
