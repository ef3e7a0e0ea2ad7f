package storage

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	"persistence-engine/internal/cache"
	"persistence-engine/internal/config"
	"persistence-engine/internal/serializer"
)

const keyStripes = 64

// Cached wraps a provider with an LRU read cache. Writes go through to the
// provider first; Delete and Clear invalidate. Statistics are never cached.
// Writes and cache fills for one key are serialized so the cache never ends
// up holding an older value than the provider.
type Cached struct {
	Provider
	cache *cache.LRUCache
	ttl   time.Duration

	seed  maphash.Seed
	locks [keyStripes]sync.Mutex

	stopJanitor context.CancelFunc
}

// NewCached wraps p using the cache section of cfg.
func NewCached(p Provider, cfg config.CacheConfig) *Cached {
	return &Cached{
		Provider: p,
		cache:    cache.NewLRUCache(cfg.Size),
		ttl:      cfg.TTL,
		seed:     maphash.MakeSeed(),
	}
}

func (c *Cached) lock(key string) func() {
	mu := &c.locks[maphash.String(c.seed, key)%keyStripes]
	mu.Lock()
	return mu.Unlock
}

// Unwrap returns the decorated provider.
func (c *Cached) Unwrap() Provider { return c.Provider }

func (c *Cached) Initialize(ctx context.Context, cfg *config.Config) Result {
	result := c.Provider.Initialize(ctx, cfg)
	if result.OK() && c.ttl > 0 && c.stopJanitor == nil {
		janitorCtx, cancel := context.WithCancel(context.Background())
		c.stopJanitor = cancel
		go c.cache.RunJanitor(janitorCtx, c.ttl)
	}
	return result
}

func (c *Cached) Save(ctx context.Context, key string, data []byte) Result {
	defer c.lock(key)()
	c.cache.Delete(key)
	result := c.Provider.Save(ctx, key, data)
	if result.OK() {
		c.cache.Put(key, data, c.ttl)
	}
	return result
}

func (c *Cached) Load(ctx context.Context, key string) ([]byte, Result) {
	if data, ok := c.cache.Get(key); ok {
		return data, Success
	}

	defer c.lock(key)()
	if data, ok := c.cache.Get(key); ok {
		return data, Success
	}
	data, result := c.Provider.Load(ctx, key)
	if result.OK() {
		c.cache.Put(key, data, c.ttl)
	}
	return data, result
}

func (c *Cached) Delete(ctx context.Context, key string) Result {
	defer c.lock(key)()
	c.cache.Delete(key)
	return c.Provider.Delete(ctx, key)
}

func (c *Cached) Exists(ctx context.Context, key string) (bool, Result) {
	if _, ok := c.cache.Get(key); ok {
		return true, Success
	}
	return c.Provider.Exists(ctx, key)
}

func (c *Cached) Clear(ctx context.Context) Result {
	for i := range c.locks {
		c.locks[i].Lock()
		defer c.locks[i].Unlock()
	}
	c.cache.Clear()
	return c.Provider.Clear(ctx)
}

func (c *Cached) Dispose(ctx context.Context) Result {
	if c.stopJanitor != nil {
		c.stopJanitor()
		c.stopJanitor = nil
	}
	c.cache.Clear()
	return c.Provider.Dispose(ctx)
}

// Serializer forwards the wrapped provider's preference.
func (c *Cached) Serializer() serializer.Serializer {
	if sp, ok := c.Provider.(SerializerProvider); ok {
		return sp.Serializer()
	}
	return nil
}

// CacheStats reports hit/miss counters of the read cache.
func (c *Cached) CacheStats() cache.Stats {
	return c.cache.Stats()
}
