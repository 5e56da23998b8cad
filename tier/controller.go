package tier

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/rungalileo/gcache/cache"
)

// DisabledReason labels why the Controller chose not to cache a
// request, matching DisabledReasons in _internal/wrappers.py.
type DisabledReason string

const (
	DisabledRampedDown    DisabledReason = "ramped_down"
	DisabledContext       DisabledReason = "context"
	DisabledMissingConfig DisabledReason = "missing_config"
	DisabledConfigError   DisabledReason = "config_error"
)

// enabledKey is unexported so only this package's helpers can read or
// write the enabled flag carried on a context, the same typed-empty-
// struct context-key idiom repositorycache/tags.go uses for cache tags.
type enabledKey struct{}

// WithEnabled attaches the cache-enabled flag to ctx. Caching defaults
// to disabled everywhere a context has not explicitly opted in — the
// same conscious-opt-in design _internal/state.py's GCacheContext.enabled
// documents, ported from a contextvars default to an explicit
// context.Context value since Go has no implicit per-goroutine state.
func WithEnabled(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, enabledKey{}, enabled)
}

// EnabledFromContext reports whether ctx has opted into caching.
// Missing means disabled, matching the ContextVar's default of False.
func EnabledFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(enabledKey{}).(bool)
	return v
}

// Controller gates a wrapped Tier by use-case configuration (TTL+ramp
// presence, ramp sampling, the enabled-context flag) and instruments
// every call with the shared Metrics. Grounded on
// _internal/wrappers.py's CacheController.
type Controller struct {
	wrapped  Tier
	provider cache.ConfigProvider
	metrics  *Metrics
	logger   *zap.SugaredLogger
	rng      func() float64
}

// NewController wraps inner with gating and instrumentation. logger may
// be nil (treated as a no-op logger).
func NewController(inner Tier, provider cache.ConfigProvider, metrics *Metrics, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		wrapped:  inner,
		provider: provider,
		metrics:  metrics,
		logger:   logger,
		rng:      rand.Float64,
	}
}

func (c *Controller) Layer() cache.Layer { return c.wrapped.Layer() }

func (c *Controller) Put(ctx context.Context, key cache.Key, value any) error {
	return c.wrapped.Put(ctx, key, value)
}

func (c *Controller) Delete(ctx context.Context, key cache.Key) (bool, error) {
	return c.wrapped.Delete(ctx, key)
}

func (c *Controller) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	return c.wrapped.Invalidate(ctx, keyType, id, futureBufferMs)
}

func (c *Controller) FlushAll(ctx context.Context) error {
	return c.wrapped.FlushAll(ctx)
}

// Get gates the request, then instruments the inner Tier's Get. On an
// inner error it retries the fallback directly unless the fallback
// itself already ran and failed, matching the original's
// fallback_failed/instrumented_fallback bookkeeping: a tier-level
// failure degrades to calling the source of truth, but a fallback
// failure is never masked.
func (c *Controller) Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error) {
	layer := c.Layer().String()

	if !c.shouldCache(ctx, key) {
		return fallback(ctx)
	}

	start := time.Now()
	var fallbackElapsed time.Duration
	fallbackFailed := false

	if c.metrics != nil {
		c.metrics.Request.WithLabelValues(key.UseCase, key.KeyType, layer).Inc()
	}

	instrumented := func(ctx context.Context) (any, error) {
		fbStart := time.Now()
		if c.metrics != nil {
			c.metrics.Miss.WithLabelValues(key.UseCase, key.KeyType, layer).Inc()
		}
		val, err := fallback(ctx)
		fallbackElapsed = time.Since(fbStart)
		if c.metrics != nil {
			c.metrics.FallbackTimer.WithLabelValues(key.UseCase, key.KeyType, layer).Observe(fallbackElapsed.Seconds())
		}
		if err != nil {
			fallbackFailed = true
		}
		return val, err
	}

	val, err := c.wrapped.Get(ctx, key, instrumented)
	if err != nil {
		c.logger.Errorw("error getting value from cache", "use_case", key.UseCase, "key_type", key.KeyType, "layer", layer, "error", err)
		if c.metrics != nil {
			c.metrics.Error.WithLabelValues(key.UseCase, key.KeyType, layer, fmt.Sprintf("%T", err), fmt.Sprintf("%t", fallbackFailed)).Inc()
		}
		if !fallbackFailed {
			val, err = fallback(ctx)
		}
	}

	if c.metrics != nil {
		elapsed := time.Since(start) - fallbackElapsed
		if elapsed < 0 {
			elapsed = 0
		}
		c.metrics.GetTimer.WithLabelValues(key.UseCase, key.KeyType, layer).Observe(elapsed.Seconds())
	}

	return val, err
}

func (c *Controller) shouldCache(ctx context.Context, key cache.Key) bool {
	layer := c.Layer()
	layerName := layer.String()

	disable := func(reason DisabledReason) bool {
		if c.metrics != nil {
			c.metrics.Disabled.WithLabelValues(key.UseCase, key.KeyType, layerName, string(reason)).Inc()
		}
		return false
	}

	if !EnabledFromContext(ctx) {
		return disable(DisabledContext)
	}

	cfg, err := c.provider(ctx, key)
	if err != nil {
		c.logger.Errorw("error getting cache config", "use_case", key.UseCase, "error", err)
		return disable(DisabledConfigError)
	}
	if cfg == nil {
		cfg = key.DefaultConfig
	}
	if cfg == nil || !cfg.Usable(layer) {
		return disable(DisabledMissingConfig)
	}

	ramp, _ := cfg.RampPercent(layer)
	if ramp >= 100 {
		return true
	}
	if ramp > 0 && c.rng() < float64(ramp)/100.0 {
		return true
	}
	return disable(DisabledRampedDown)
}
