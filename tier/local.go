package tier

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rungalileo/gcache/cache"
)

// DefaultLocalMaxEntries bounds each use case's in-process cache,
// matching LOCAL_CACHE_MAX_SIZE in the original implementation's
// constants.py.
const DefaultLocalMaxEntries = 10_000

type localEntry struct {
	value     any
	createdAt time.Time
}

type localUseCaseCache struct {
	lru *lru.Cache[string, localEntry]
	ttl time.Duration
}

// LocalTier is the in-process layer of the cache chain: one bounded LRU
// per use case, entries expired by comparing their stored creation time
// against the use case's configured TTL on read. There is no
// invalidation support here — watermark-based invalidation only applies
// to the shared RemoteTier, matching CacheInterface.invalidate's no-op
// default in the original implementation.
//
// Grounded on _internal/local_cache.py's LocalCache: a dict of use case
// to TTL cache, created lazily behind a lock with a double-checked
// recheck once the lock is held. golang-lru/v2's plain Cache has no
// built-in TTL (unlike Python's cachetools.TTLCache), so entries here
// carry their own creation timestamp the same way
// ipiton-alert-history-service's TwoTierTemplateCache pairs an LRU with
// manual timestamp bookkeeping.
type LocalTier struct {
	configProvider cache.ConfigProvider
	maxEntries     int

	mu     sync.RWMutex
	caches map[string]*localUseCaseCache
}

// NewLocalTier returns a LocalTier that resolves per-use-case TTLs via
// provider. maxEntries <= 0 uses DefaultLocalMaxEntries.
func NewLocalTier(provider cache.ConfigProvider, maxEntries int) *LocalTier {
	if maxEntries <= 0 {
		maxEntries = DefaultLocalMaxEntries
	}
	return &LocalTier{
		configProvider: provider,
		maxEntries:     maxEntries,
		caches:         make(map[string]*localUseCaseCache),
	}
}

func (t *LocalTier) resolveConfig(ctx context.Context, key cache.Key) (*cache.KeyConfig, error) {
	cfg, err := t.configProvider(ctx, key)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = key.DefaultConfig
	}
	return cfg, nil
}

func (t *LocalTier) getOrCreate(ctx context.Context, key cache.Key) (*localUseCaseCache, error) {
	t.mu.RLock()
	c, ok := t.caches[key.UseCase]
	t.mu.RUnlock()
	if ok {
		return c, nil
	}

	cfg, err := t.resolveConfig(ctx, key)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.Usable(cache.LayerLocal) {
		return nil, cache.ErrMissingKeyConfig(key.UseCase)
	}
	ttl, _ := cfg.TTL(cache.LayerLocal)

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.caches[key.UseCase]; ok {
		return c, nil
	}
	l, err := lru.New[string, localEntry](t.maxEntries)
	if err != nil {
		return nil, cache.ErrKeyConstructionFailed(err)
	}
	c = &localUseCaseCache{lru: l, ttl: ttl}
	t.caches[key.UseCase] = c
	return c, nil
}

func (t *LocalTier) Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error) {
	c, err := t.getOrCreate(ctx, key)
	if err != nil {
		return nil, err
	}

	if entry, ok := c.lru.Get(key.URN); ok && time.Since(entry.createdAt) < c.ttl {
		return entry.value, nil
	}

	val, err := fallback(ctx)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key.URN, localEntry{value: val, createdAt: time.Now()})
	return val, nil
}

func (t *LocalTier) Put(ctx context.Context, key cache.Key, value any) error {
	c, err := t.getOrCreate(ctx, key)
	if err != nil {
		return err
	}
	c.lru.Add(key.URN, localEntry{value: value, createdAt: time.Now()})
	return nil
}

func (t *LocalTier) Delete(ctx context.Context, key cache.Key) (bool, error) {
	c, err := t.getOrCreate(ctx, key)
	if err != nil {
		return false, err
	}
	return c.lru.Remove(key.URN), nil
}

func (t *LocalTier) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	return nil
}

func (t *LocalTier) Layer() cache.Layer {
	return cache.LayerLocal
}

func (t *LocalTier) FlushAll(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.caches = make(map[string]*localUseCaseCache)
	return nil
}
