// Package tier implements the cache layers a Chain composes: an
// in-process LocalTier, a Redis-backed RemoteTier, and a NoopTier used
// when no remote store is configured. Controller wraps any Tier with
// gating and Prometheus instrumentation; Chain composes two Tiers into
// a read-through cascade.
package tier

import (
	"context"

	"github.com/rungalileo/gcache/cache"
)

// Fallback produces the value to cache on a miss. It is supplied by the
// engine decorator (the wrapped function call) or by an outer Tier
// wrapping an inner one (Chain wraps the inner tier's Get as the outer
// tier's fallback).
type Fallback func(ctx context.Context) (any, error)

// Tier is one layer of the cache chain.
type Tier interface {
	// Get returns the cached value for key, calling fallback on a miss
	// (or whenever this tier decides not to serve from its own store).
	Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error)
	// Put stores value under key according to key's resolved KeyConfig.
	Put(ctx context.Context, key cache.Key, value any) error
	// Delete removes key from this tier's store. Returns whether
	// anything was actually deleted.
	Delete(ctx context.Context, key cache.Key) (bool, error)
	// Invalidate marks every cache entry for (keyType, id) created at or
	// before now+futureBufferMs as stale. Tiers that do not support
	// invalidation (LocalTier, NoopTier) no-op.
	Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error
	// Layer identifies this tier's position for metrics and logging.
	Layer() cache.Layer
	// FlushAll removes every entry this tier manages. Intended for tests.
	FlushAll(ctx context.Context) error
}
