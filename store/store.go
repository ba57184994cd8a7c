package store

import (
	"context"
	"errors"
	"time"

	"github.com/codetesla51/productcache/product"
)

// ErrNotFound is returned when a hash field or a product record does not exist.
var ErrNotFound = errors.New("not found")

// HashStore is a key-value store of named hashes ("buckets"). Expiry applies
// to a whole bucket, never to a single field. A bucket with no fields does
// not exist.
type HashStore interface {
	// HGet returns the value of one field, or ErrNotFound
	HGet(ctx context.Context, bucket, field string) ([]byte, error)

	// HSet writes one field and leaves the bucket expiry as it was
	HSet(ctx context.Context, bucket, field string, value []byte) error

	// HSetAll writes every field and arms ttl in one atomic step
	HSetAll(ctx context.Context, bucket string, fields map[string][]byte, ttl time.Duration) error

	// HReplace swaps the whole bucket for fields and arms ttl in one atomic
	// step; fields not in the new set are gone afterwards
	HReplace(ctx context.Context, bucket string, fields map[string][]byte, ttl time.Duration) error

	// HGetAll returns all fields; empty when the bucket is absent or expired
	HGetAll(ctx context.Context, bucket string) (map[string][]byte, error)

	// HDel removes one field; absent fields are ignored
	HDel(ctx context.Context, bucket, field string) error

	// Expire sets the bucket expiry; absent buckets are ignored
	Expire(ctx context.Context, bucket string, ttl time.Duration) error

	// Del drops the whole bucket
	Del(ctx context.Context, bucket string) error

	Close() error
}

// ProductSource is the authoritative product catalog behind the cache.
type ProductSource interface {
	FetchAll(ctx context.Context) ([]product.Product, error)

	// FetchByID returns ErrNotFound for unknown ids
	FetchByID(ctx context.Context, id int) (product.Product, error)
}
