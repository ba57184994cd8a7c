// Package cache implements the read-through product cache.
//
// A Coordinator keeps every cached product in one hash bucket that shares a
// single TTL. Reads that miss are filled from the backing store and re-arm
// that TTL; plain writes do not. Concurrent fills for the same key collapse
// into one backing store call.
package cache

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/codetesla51/productcache/product"
	"github.com/codetesla51/productcache/store"
)

const (
	DefaultBucket       = "productsDetails"
	DefaultTTL          = 300 * time.Second
	DefaultCacheTimeout = 2 * time.Second
	DefaultStoreTimeout = 5 * time.Second
)

const (
	opSave     = "save"
	opFindAll  = "find_all"
	opFindByID = "find_by_id"
	opDelete   = "delete_by_id"
	opEvict    = "evict"
	opWarm     = "warm"

	flightAll  = "all"
	flightWarm = "warm"
)

// Options configures a Coordinator. Cache and Source are required; zero
// durations and an empty bucket fall back to the defaults.
type Options struct {
	Cache  store.HashStore
	Source store.ProductSource

	Bucket       string
	TTL          time.Duration
	CacheTimeout time.Duration
	StoreTimeout time.Duration

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Coordinator mediates every product read and write between callers, the
// cache store and the backing store. It is safe for concurrent use.
type Coordinator struct {
	cache  store.HashStore
	source store.ProductSource

	bucket       string
	ttl          time.Duration
	cacheTimeout time.Duration
	storeTimeout time.Duration

	logger  zerolog.Logger
	metrics *Metrics
	flights singleflight.Group
}

func New(opts Options) (*Coordinator, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Source == nil {
		return nil, errors.New("product source is required")
	}

	c := &Coordinator{
		cache:        opts.Cache,
		source:       opts.Source,
		bucket:       opts.Bucket,
		ttl:          opts.TTL,
		cacheTimeout: opts.CacheTimeout,
		storeTimeout: opts.StoreTimeout,
		metrics:      opts.Metrics,
	}
	if c.bucket == "" {
		c.bucket = DefaultBucket
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.cacheTimeout <= 0 {
		c.cacheTimeout = DefaultCacheTimeout
	}
	if c.storeTimeout <= 0 {
		c.storeTimeout = DefaultStoreTimeout
	}
	c.logger = opts.Logger.With().Str("component", "cache").Str("bucket", c.bucket).Logger()

	return c, nil
}

// Bucket returns the name of the hash bucket the coordinator owns.
func (c *Coordinator) Bucket() string {
	return c.bucket
}

// Save upserts p in the bucket. The bucket TTL is left as it was.
func (c *Coordinator) Save(ctx context.Context, p product.Product) (product.Product, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return product.Product{}, fmt.Errorf("encode product %d: %w", p.ID, err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()
	if err := c.cache.HSet(cctx, c.bucket, field(p.ID), data); err != nil {
		return product.Product{}, c.cacheFailure(ctx, opSave, err)
	}

	c.logger.Debug().Int("id", p.ID).Msg("product saved to cache")
	return p, nil
}

// FindAll returns every cached product, ordered by id. An empty bucket is
// filled from the backing store in one batch.
func (c *Coordinator) FindAll(ctx context.Context) ([]product.Product, error) {
	cached, err := c.readAll(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		_ = c.cacheFailure(ctx, opFindAll, err)
		return c.fetchAll(ctx, opFindAll)
	}
	if len(cached) > 0 {
		c.metrics.RecordLookup(opFindAll, true)
		c.logger.Debug().Int("count", len(cached)).Msg("cache already present")
		return cached, nil
	}

	c.metrics.RecordLookup(opFindAll, false)
	v, err := c.share(ctx, flightAll, func(fctx context.Context) (any, error) {
		// a previous flight may have filled the bucket since our read
		if cached, err := c.readAll(fctx); err == nil && len(cached) > 0 {
			return cached, nil
		}

		products, err := c.fetchAll(fctx, opFindAll)
		if err != nil {
			return nil, err
		}
		_ = c.populate(fctx, opFindAll, products, true)
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]product.Product)), nil
}

// FindByID returns the product with the given id, filling the bucket from the
// backing store on a miss. Unknown ids yield ErrNotFound and are not cached.
func (c *Coordinator) FindByID(ctx context.Context, id int) (product.Product, error) {
	p, err := c.readOne(ctx, id)
	switch {
	case err == nil:
		c.metrics.RecordLookup(opFindByID, true)
		c.logger.Debug().Int("id", id).Msg("cache hit")
		return p, nil
	case errors.Is(err, store.ErrNotFound):
		c.metrics.RecordLookup(opFindByID, false)
	default:
		if errors.Is(ctx.Err(), context.Canceled) {
			return product.Product{}, ctx.Err()
		}
		_ = c.cacheFailure(ctx, opFindByID, err)
		return c.fetchOne(ctx, id)
	}

	v, err := c.share(ctx, "id:"+field(id), func(fctx context.Context) (any, error) {
		if p, err := c.readOne(fctx, id); err == nil {
			return p, nil
		}

		p, err := c.fetchOne(fctx, id)
		if err != nil {
			return nil, err
		}
		_ = c.populate(fctx, opFindByID, []product.Product{p}, false)
		c.logger.Info().Int("id", id).Msg("product fetched from backing store")
		return p, nil
	})
	if err != nil {
		return product.Product{}, err
	}
	return v.(product.Product), nil
}

// DeleteByID removes id from the bucket. Absent ids are not an error.
func (c *Coordinator) DeleteByID(ctx context.Context, id int) error {
	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()
	if err := c.cache.HDel(cctx, c.bucket, field(id)); err != nil {
		return c.cacheFailure(ctx, opDelete, err)
	}
	c.logger.Debug().Int("id", id).Msg("product removed from cache")
	return nil
}

// Evict drops the whole bucket. The next read refills it.
func (c *Coordinator) Evict(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()
	if err := c.cache.Del(cctx, c.bucket); err != nil {
		return c.cacheFailure(ctx, opEvict, err)
	}
	c.logger.Info().Msg("bucket evicted")
	return nil
}

// Warm reloads the full catalog into the bucket whether or not it is
// populated, and reports how many products were written.
func (c *Coordinator) Warm(ctx context.Context) (int, error) {
	v, err := c.share(ctx, flightWarm, func(fctx context.Context) (any, error) {
		products, err := c.fetchAll(fctx, opWarm)
		if err != nil {
			return nil, err
		}
		if err := c.populate(fctx, opWarm, products, true); err != nil {
			return nil, err
		}
		return len(products), nil
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info().Int("count", v.(int)).Msg("bucket warmed")
	return v.(int), nil
}

// share runs fn once per key across concurrent callers. fn gets a context
// detached from the caller so a fill outlives an abandoned request; the
// caller itself stops waiting as soon as its own context is done.
func (c *Coordinator) share(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := c.flights.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.storeTimeout+2*c.cacheTimeout)
		defer cancel()
		return fn(fctx)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.RecordShared()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) readAll(ctx context.Context) ([]product.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()

	fields, err := c.cache.HGetAll(cctx, c.bucket)
	if err != nil {
		return nil, err
	}

	products := make([]product.Product, 0, len(fields))
	for f, data := range fields {
		var p product.Product
		if err := json.Unmarshal(data, &p); err != nil {
			// one unreadable entry forces a refill of the whole bucket
			c.logger.Warn().Err(err).Str("field", f).Msg("discarding undecodable cache entry")
			return nil, nil
		}
		products = append(products, p)
	}
	sortByID(products)
	return products, nil
}

func (c *Coordinator) readOne(ctx context.Context, id int) (product.Product, error) {
	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()

	data, err := c.cache.HGet(cctx, c.bucket, field(id))
	if err != nil {
		return product.Product{}, err
	}

	var p product.Product
	if err := json.Unmarshal(data, &p); err != nil {
		c.logger.Warn().Err(err).Int("id", id).Msg("discarding undecodable cache entry")
		if err := c.cache.HDel(cctx, c.bucket, field(id)); err != nil {
			c.logger.Warn().Err(err).Int("id", id).Msg("could not remove undecodable cache entry")
		}
		return product.Product{}, fmt.Errorf("decode product %d: %w", id, store.ErrNotFound)
	}
	return p, nil
}

// populate writes products and re-arms the bucket TTL in one batch. A full
// catalog load replaces the bucket so entries the backing store no longer
// has, or that no longer decode, do not outlive the fill.
func (c *Coordinator) populate(ctx context.Context, op string, products []product.Product, replace bool) error {
	cctx, cancel := context.WithTimeout(ctx, c.cacheTimeout)
	defer cancel()

	if len(products) == 0 {
		if !replace {
			return nil
		}
		// an empty catalog leaves nothing to cache
		if err := c.cache.Del(cctx, c.bucket); err != nil {
			return c.cacheFailure(ctx, op, err)
		}
		return nil
	}

	fields := make(map[string][]byte, len(products))
	for _, p := range products {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode product %d: %w", p.ID, err)
		}
		fields[field(p.ID)] = data
	}

	write := c.cache.HSetAll
	if replace {
		write = c.cache.HReplace
	}
	if err := write(cctx, c.bucket, fields, c.ttl); err != nil {
		return c.cacheFailure(ctx, op, err)
	}

	c.logger.Debug().Str("op", op).Int("count", len(products)).Dur("ttl", c.ttl).Msg("bucket populated")
	return nil
}

func (c *Coordinator) fetchAll(ctx context.Context, op string) ([]product.Product, error) {
	sctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	c.logger.Info().Str("op", op).Msg("fetching products from backing store")
	start := time.Now()
	products, err := c.source.FetchAll(sctx)
	c.metrics.RecordFetch(op, err, time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		c.logger.Error().Err(err).Str("op", op).Msg("backing store fetch failed")
		return nil, fmt.Errorf("fetch all products: %w: %w", ErrStoreUnavailable, err)
	}

	sortByID(products)
	return products, nil
}

func (c *Coordinator) fetchOne(ctx context.Context, id int) (product.Product, error) {
	sctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()

	start := time.Now()
	p, err := c.source.FetchByID(sctx, id)
	if errors.Is(err, store.ErrNotFound) {
		c.metrics.RecordFetch(opFindByID, nil, time.Since(start))
		return product.Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	c.metrics.RecordFetch(opFindByID, err, time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return product.Product{}, ctx.Err()
		}
		c.logger.Error().Err(err).Int("id", id).Msg("backing store fetch failed")
		return product.Product{}, fmt.Errorf("fetch product %d: %w: %w", id, ErrStoreUnavailable, err)
	}
	return p, nil
}

// cacheFailure logs a cache store error and wraps it as ErrCacheUnavailable.
// A caller that gave up gets its own context error back instead.
func (c *Coordinator) cacheFailure(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	c.metrics.RecordDegraded(op)
	c.logger.Warn().Err(err).Str("op", op).Msg("cache store unavailable")
	return fmt.Errorf("%s: %w: %w", op, ErrCacheUnavailable, err)
}

func field(id int) string {
	return strconv.Itoa(id)
}

func sortByID(products []product.Product) {
	slices.SortFunc(products, func(a, b product.Product) int {
		return cmp.Compare(a.ID, b.ID)
	})
}
