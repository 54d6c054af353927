// internal/feed/rediscache/cache.go
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/feed"
)

// DefaultTTL is how long a fetched window stays cached.
const DefaultTTL = 24 * time.Hour

// ErrMiss is returned by a kv on a missing key.
var ErrMiss = errors.New("cache miss")

// kv is the slice of Redis the cache needs.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisKV struct {
	rdb *redis.Client
}

func (r redisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

func (r redisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Cache is a feed.Source that serves fetched windows from Redis and falls
// back to the wrapped source on a miss. Redis failures are logged and
// never fail a fetch.
//
// Key schema:
//
//	portsim:prices:{feed}:{symbol}:{start}:{end}  - JSON core.PriceSeries
//	portsim:rates:{feed}:{base}{quote}:{start}:{end} - JSON core.FxSeries
type Cache struct {
	inner  feed.Source
	store  kv
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache wraps inner with a cache backed by c.
func NewCache(c *Client, inner feed.Source, ttl time.Duration, logger *zap.Logger) *Cache {
	return newCache(redisKV{rdb: c.Underlying()}, inner, ttl, logger)
}

func newCache(store kv, inner feed.Source, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{inner: inner, store: store, ttl: ttl, logger: logger}
}

func (c *Cache) Name() string { return c.inner.Name() }

func pricesKey(feedName, symbol string, start, end time.Time) string {
	return fmt.Sprintf("portsim:prices:%s:%s:%s:%s", feedName, symbol,
		start.Format(core.DateFormat), end.Format(core.DateFormat))
}

func ratesKey(feedName string, pair core.CurrencyPair, start, end time.Time) string {
	return fmt.Sprintf("portsim:rates:%s:%s%s:%s:%s", feedName, pair.Base, pair.Quote,
		start.Format(core.DateFormat), end.Format(core.DateFormat))
}

func (c *Cache) FetchHistory(ctx context.Context, symbol string, start, end time.Time) (core.PriceSeries, error) {
	key := pricesKey(c.inner.Name(), symbol, core.Day(start), core.Day(end))

	var series core.PriceSeries
	if c.load(ctx, key, &series) {
		return series, nil
	}

	series, err := c.inner.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return core.PriceSeries{}, err
	}
	c.save(ctx, key, series)
	return series, nil
}

func (c *Cache) FetchRates(ctx context.Context, pair core.CurrencyPair, start, end time.Time) (core.FxSeries, error) {
	key := ratesKey(c.inner.Name(), pair, core.Day(start), core.Day(end))

	var rates core.FxSeries
	if c.load(ctx, key, &rates) {
		return rates, nil
	}

	rates, err := c.inner.FetchRates(ctx, pair, start, end)
	if err != nil {
		return core.FxSeries{}, err
	}
	c.save(ctx, key, rates)
	return rates, nil
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false
	}
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	c.logger.Debug("cache hit", zap.String("key", key))
	return true
}

func (c *Cache) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
