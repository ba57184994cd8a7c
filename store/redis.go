package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each bucket as a Redis hash.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) (*RedisStore, error) {
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) HGet(ctx context.Context, bucket, field string) ([]byte, error) {
	val, err := r.client.HGet(ctx, bucket, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("field %s in bucket %s: %w", field, bucket, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (r *RedisStore) HSet(ctx context.Context, bucket, field string, value []byte) error {
	return r.client.HSet(ctx, bucket, field, value).Err()
}

// HSetAll writes the fields and the expiry inside MULTI/EXEC so no reader
// sees a half-written bucket.
func (r *RedisStore) HSetAll(ctx context.Context, bucket string, fields map[string][]byte, ttl time.Duration) error {
	if len(fields) == 0 {
		return fmt.Errorf("hsetall %s: no fields", bucket)
	}
	values := make(map[string]interface{}, len(fields))
	for field, value := range fields {
		values[field] = value
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, bucket, values)
		if ttl > 0 {
			pipe.Expire(ctx, bucket, ttl)
		}
		return nil
	})
	return err
}

// HReplace drops the old hash and writes the new one inside MULTI/EXEC.
func (r *RedisStore) HReplace(ctx context.Context, bucket string, fields map[string][]byte, ttl time.Duration) error {
	if len(fields) == 0 {
		return fmt.Errorf("hreplace %s: no fields", bucket)
	}
	values := make(map[string]interface{}, len(fields))
	for field, value := range fields {
		values[field] = value
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, bucket)
		pipe.HSet(ctx, bucket, values)
		if ttl > 0 {
			pipe.Expire(ctx, bucket, ttl)
		}
		return nil
	})
	return err
}

func (r *RedisStore) HGetAll(ctx context.Context, bucket string) (map[string][]byte, error) {
	vals, err := r.client.HGetAll(ctx, bucket).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(vals))
	for field, value := range vals {
		out[field] = []byte(value)
	}
	return out, nil
}

func (r *RedisStore) HDel(ctx context.Context, bucket, field string) error {
	return r.client.HDel(ctx, bucket, field).Err()
}

func (r *RedisStore) Expire(ctx context.Context, bucket string, ttl time.Duration) error {
	return r.client.Expire(ctx, bucket, ttl).Err()
}

func (r *RedisStore) Del(ctx context.Context, bucket string) error {
	return r.client.Del(ctx, bucket).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
