package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type bucket struct {
	fields     map[string][]byte
	expiration time.Time // zero => no expiry
}

func (b *bucket) expired(now time.Time) bool {
	return !b.expiration.IsZero() && !now.Before(b.expiration)
}

// MemoryStore is an in-process HashStore. Values are copied on the way in and
// out so callers never share backing arrays with the store.
type MemoryStore struct {
	data map[string]*bucket
	mu   sync.Mutex
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(ms *MemoryStore) {
		ms.now = now
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		data: make(map[string]*bucket),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(store)
	}

	// Background cleanup of expired buckets
	go store.cleanupExpired(5 * time.Minute)

	return store
}

// live returns the bucket if it exists and has not expired. Caller holds mu.
func (ms *MemoryStore) live(name string) (*bucket, bool) {
	b, exists := ms.data[name]
	if !exists {
		return nil, false
	}
	if b.expired(ms.now()) {
		delete(ms.data, name)
		return nil, false
	}
	return b, true
}

func (ms *MemoryStore) HGet(ctx context.Context, bucketName, field string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", bucketName, ErrNotFound)
	}
	value, ok := b.fields[field]
	if !ok {
		return nil, fmt.Errorf("field %s in bucket %s: %w", field, bucketName, ErrNotFound)
	}
	return clone(value), nil
}

func (ms *MemoryStore) HSet(ctx context.Context, bucketName, field string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		b = &bucket{fields: make(map[string][]byte)}
		ms.data[bucketName] = b
	}
	b.fields[field] = clone(value)
	return nil
}

func (ms *MemoryStore) HSetAll(ctx context.Context, bucketName string, fields map[string][]byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("hsetall %s: no fields", bucketName)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		b = &bucket{fields: make(map[string][]byte, len(fields))}
		ms.data[bucketName] = b
	}
	for field, value := range fields {
		b.fields[field] = clone(value)
	}
	if ttl > 0 {
		b.expiration = ms.now().Add(ttl)
	}
	return nil
}

func (ms *MemoryStore) HReplace(ctx context.Context, bucketName string, fields map[string][]byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("hreplace %s: no fields", bucketName)
	}

	b := &bucket{fields: make(map[string][]byte, len(fields))}
	for field, value := range fields {
		b.fields[field] = clone(value)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ttl > 0 {
		b.expiration = ms.now().Add(ttl)
	}
	ms.data[bucketName] = b
	return nil
}

func (ms *MemoryStore) HGetAll(ctx context.Context, bucketName string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		return map[string][]byte{}, nil
	}
	out := make(map[string][]byte, len(b.fields))
	for field, value := range b.fields {
		out[field] = clone(value)
	}
	return out, nil
}

func (ms *MemoryStore) HDel(ctx context.Context, bucketName, field string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		return nil
	}
	delete(b.fields, field)
	if len(b.fields) == 0 {
		delete(ms.data, bucketName)
	}
	return nil
}

func (ms *MemoryStore) Expire(ctx context.Context, bucketName string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		return nil
	}
	if ttl <= 0 {
		delete(ms.data, bucketName)
		return nil
	}
	b.expiration = ms.now().Add(ttl)
	return nil
}

func (ms *MemoryStore) Del(ctx context.Context, bucketName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.data, bucketName)
	return nil
}

// TTL reports the remaining lifetime of a bucket: -2 when absent, -1 when it
// has no expiry.
func (ms *MemoryStore) TTL(bucketName string) time.Duration {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	b, ok := ms.live(bucketName)
	if !ok {
		return -2
	}
	if b.expiration.IsZero() {
		return -1
	}
	return b.expiration.Sub(ms.now())
}

// Close stops the cleanup goroutine.
func (ms *MemoryStore) Close() error {
	ms.once.Do(func() { close(ms.done) })
	return nil
}

func (ms *MemoryStore) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ms.done:
			return
		case <-ticker.C:
			ms.sweep()
		}
	}
}

func (ms *MemoryStore) sweep() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	for name, b := range ms.data {
		if b.expired(now) {
			delete(ms.data, name)
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
