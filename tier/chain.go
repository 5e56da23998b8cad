package tier

import (
	"context"

	"github.com/rungalileo/gcache/cache"
)

// Chain composes two Tiers into a single two-level lookup: outer is
// consulted first, and only calls inner (itself falling back to the
// caller's fallback) on a miss. Put and Delete apply to both tiers so a
// write or eviction is visible at either level. Grounded on
// _internal/wrappers.py's CacheChain.
type Chain struct {
	outer Tier
	inner Tier
}

// NewChain returns a Chain that checks outer before inner.
func NewChain(outer, inner Tier) *Chain {
	return &Chain{outer: outer, inner: inner}
}

func (c *Chain) Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error) {
	return c.outer.Get(ctx, key, func(ctx context.Context) (any, error) {
		return c.inner.Get(ctx, key, fallback)
	})
}

func (c *Chain) Put(ctx context.Context, key cache.Key, value any) error {
	if err := c.outer.Put(ctx, key, value); err != nil {
		return err
	}
	return c.inner.Put(ctx, key, value)
}

func (c *Chain) Delete(ctx context.Context, key cache.Key) (bool, error) {
	outerDeleted, err := c.outer.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	innerDeleted, err := c.inner.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	return outerDeleted || innerDeleted, nil
}

// Invalidate propagates to both tiers; LocalTier's Invalidate is a no-op
// so in practice this only takes effect at the RemoteTier.
func (c *Chain) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	if err := c.outer.Invalidate(ctx, keyType, id, futureBufferMs); err != nil {
		return err
	}
	return c.inner.Invalidate(ctx, keyType, id, futureBufferMs)
}

// Layer reports the outer tier's layer, since that is the one a caller
// observes a hit or miss against first.
func (c *Chain) Layer() cache.Layer {
	return c.outer.Layer()
}

func (c *Chain) FlushAll(ctx context.Context) error {
	if err := c.outer.FlushAll(ctx); err != nil {
		return err
	}
	return c.inner.FlushAll(ctx)
}
