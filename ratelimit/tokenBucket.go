// Package ratelimit provides a per-client token bucket limiter whose state
// lives in a store.HashStore.
package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/codetesla51/productcache/store"
)

const (
	keyPrefix  = "ratelimit:"
	stateField = "state"
	stateTTL   = 1 * time.Hour
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"last_refill"`
}

type TokenBucket struct {
	Capacity   int
	RefillRate int // tokens per second
	store      store.HashStore
	now        func() time.Time
	mu         sync.Mutex
}

type Option func(*TokenBucket)

// WithClock replaces time.Now for refill calculations.
func WithClock(now func() time.Time) Option {
	return func(tb *TokenBucket) {
		tb.now = now
	}
}

func NewTokenBucket(capacity, refillRate int, s store.HashStore, opts ...Option) *TokenBucket {
	tb := &TokenBucket{
		Capacity:   capacity,
		RefillRate: refillRate,
		store:      s,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(tb)
	}
	return tb
}

// Allow takes one token from key's bucket if one is available.
func (tb *TokenBucket) Allow(ctx context.Context, key string) (Result, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	state, err := tb.load(ctx, key, now)
	if err != nil {
		return Result{}, err
	}

	// Refill fractional tokens so frequent callers still accumulate
	elapsed := now.Sub(time.Unix(0, state.LastRefill)).Seconds()
	if elapsed > 0 {
		state.Tokens = math.Min(float64(tb.Capacity), state.Tokens+elapsed*float64(tb.RefillRate))
	}
	state.LastRefill = now.UnixNano()

	allowed := state.Tokens >= 1
	if allowed {
		state.Tokens--
	}

	if err := tb.save(ctx, key, state); err != nil {
		return Result{}, err
	}

	result := Result{
		Allowed:   allowed,
		Limit:     tb.Capacity,
		Remaining: int(state.Tokens),
	}
	if !allowed {
		missing := 1 - state.Tokens
		result.RetryAfter = time.Duration(missing / float64(tb.RefillRate) * float64(time.Second))
	}
	return result, nil
}

// Reset drops key's bucket. It fails if the bucket does not exist.
func (tb *TokenBucket) Reset(ctx context.Context, key string) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if _, err := tb.store.HGet(ctx, keyPrefix+key, stateField); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("bucket for key %s does not exist", key)
		}
		return fmt.Errorf("failed to read bucket state: %w", err)
	}
	return tb.store.Del(ctx, keyPrefix+key)
}

func (tb *TokenBucket) load(ctx context.Context, key string, now time.Time) (bucketState, error) {
	fresh := bucketState{Tokens: float64(tb.Capacity), LastRefill: now.UnixNano()}

	raw, err := tb.store.HGet(ctx, keyPrefix+key, stateField)
	if errors.Is(err, store.ErrNotFound) {
		return fresh, nil
	}
	if err != nil {
		return bucketState{}, fmt.Errorf("failed to load bucket state: %w", err)
	}

	var state bucketState
	if err := json.Unmarshal(raw, &state); err != nil {
		return fresh, nil
	}
	return state, nil
}

func (tb *TokenBucket) save(ctx context.Context, key string, state bucketState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode bucket state: %w", err)
	}
	// state and idle expiry go out in one write so no bucket is left without a TTL
	fields := map[string][]byte{stateField: raw}
	if err := tb.store.HSetAll(ctx, keyPrefix+key, fields, stateTTL); err != nil {
		return fmt.Errorf("failed to save bucket state: %w", err)
	}
	return nil
}
