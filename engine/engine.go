package engine

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rungalileo/gcache/cache"
	"github.com/rungalileo/gcache/tier"
)

// instantiated guards the same process-wide singleton invariant
// gcache.py's `_GLOBAL_GCACHE_STATE.gcache_instantiated` flag does: only
// one Engine may exist in a process at a time, since every cached
// function registration shares one Registry and one metrics namespace.
var instantiated atomic.Bool

// RedisConfig describes how to dial the remote tier when no client
// factory is supplied directly.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config wires together the ambient (cache.Config) and transport-level
// settings an Engine needs. Exactly one of RedisConfig or
// RedisClientFactory may be set; leaving both nil runs the engine with a
// NoopTier remote layer. Grounded on GCacheConfig in the original
// implementation.
type Config struct {
	cache.Config

	ConfigProvider cache.ConfigProvider
	Logger         *zap.SugaredLogger
	Registerer     prometheus.Registerer

	RedisConfig        *RedisConfig
	RedisClientFactory func() *redis.Client

	LocalMaxEntries int
	SyncWorkers     int
}

// Engine is the process-wide cache facade: it owns the KeyBuilder, the
// use-case Registry, the two-tier Chain, and the SyncBridge that lets
// synchronous call sites use the same pipeline as asynchronous ones.
// Grounded on gcache.py's GCache.
type Engine struct {
	keyBuilder *cache.KeyBuilder
	registry   *cache.Registry
	provider   cache.ConfigProvider
	logger     *zap.SugaredLogger

	local  *tier.Controller
	remote *tier.Controller
	chain  *tier.Chain

	metrics    *tier.Metrics
	registerer prometheus.Registerer
	bridge     *SyncBridge
}

// New constructs the singleton Engine. It fails with
// cache.ErrAlreadyInstantiated if called twice in the same process
// without an intervening Close.
func New(cfg Config) (*Engine, error) {
	if !instantiated.CompareAndSwap(false, true) {
		return nil, cache.ErrAlreadyInstantiated()
	}

	if cfg.RedisConfig != nil && cfg.RedisClientFactory != nil {
		instantiated.Store(false)
		return nil, cache.ErrRedisConfigConflict()
	}

	provider := cfg.ConfigProvider
	if provider == nil {
		provider = cache.NoopConfigProvider
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ambient := cfg.Config
	if ambient.URNPrefix == "" && ambient.MetricsPrefix == "" {
		ambient = cache.DefaultConfig()
	}

	metrics := tier.NewMetrics(reg, ambient.MetricsPrefix)

	localTier := tier.NewLocalTier(provider, cfg.LocalMaxEntries)
	local := tier.NewController(localTier, provider, metrics, logger)

	var remoteInner tier.Tier
	switch {
	case cfg.RedisConfig != nil:
		remoteInner = tier.NewRemoteTier(newRedisClient(*cfg.RedisConfig), provider, ambient.URNPrefix, metrics)
	case cfg.RedisClientFactory != nil:
		remoteInner = tier.NewRemoteTier(cfg.RedisClientFactory(), provider, ambient.URNPrefix, metrics)
	default:
		remoteInner = tier.NewNoopTier()
	}
	remote := tier.NewController(remoteInner, provider, metrics, logger)

	chain := tier.NewChain(local, remote)

	return &Engine{
		keyBuilder: cache.NewKeyBuilder(ambient.URNPrefix),
		registry:   cache.NewRegistry(),
		provider:   provider,
		logger:     logger,
		local:      local,
		remote:     remote,
		chain:      chain,
		metrics:    metrics,
		registerer: reg,
		bridge:     NewSyncBridge("gcache", cfg.SyncWorkers),
	}, nil
}

// globalLayer is the layer label gcache.py's async_wrapped/sync_wrapped use
// when recording DisabledReasons.context at the decorator, before either
// Controller in the chain is ever reached.
const globalLayer = "GLOBAL"

// recordDisabledContext instruments a call short-circuited by the
// enabled-context gate, mirroring GCacheMetrics.DISABLED_COUNTER.labels(
// use_case, key_type, "GLOBAL", DisabledReasons.context.name) in gcache.py.
func (e *Engine) recordDisabledContext(useCase, keyType string) {
	if e.metrics == nil {
		return
	}
	e.metrics.Disabled.WithLabelValues(useCase, keyType, globalLayer, string(tier.DisabledContext)).Inc()
}

func newRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Close releases the singleton slot, stops the SyncBridge and unregisters
// the Engine's metrics from its Registerer, so a later New can register
// them again. Intended for tests that construct and tear down an Engine
// repeatedly; a long-lived process never needs to call it.
func (e *Engine) Close() {
	e.bridge.Stop()
	m := e.metrics
	for _, c := range []prometheus.Collector{m.Disabled, m.Miss, m.Request, m.Error, m.Invalidation, m.GetTimer, m.FallbackTimer, m.SerializeTimer, m.SizeHistogram} {
		e.registerer.Unregister(c)
	}
	instantiated.Store(false)
}

// Invalidate marks every cache entry for (keyType, id) as stale,
// propagating to both tiers of the chain (only the remote tier acts on
// it; the local tier's Invalidate is a no-op).
func (e *Engine) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	return e.chain.Invalidate(ctx, keyType, id, futureBufferMs)
}

// Delete removes a specific cache entry from both tiers.
func (e *Engine) Delete(ctx context.Context, key cache.Key) (bool, error) {
	return e.chain.Delete(ctx, key)
}

// FlushAll clears every entry from every tier. Intended for tests.
func (e *Engine) FlushAll(ctx context.Context) error {
	return e.chain.FlushAll(ctx)
}

func (e *Engine) register(useCase string) error {
	return e.registry.Register(useCase)
}
