package tier

import (
	"context"

	"github.com/rungalileo/gcache/cache"
)

// NoopTier always calls the fallback and stores nothing. It stands in
// for the remote tier when a process has no Redis configured, so the
// rest of the chain (Controller, Chain) is exercised identically whether
// or not a remote store is present. Grounded on _internal/noop_cache.py.
type NoopTier struct{}

// NewNoopTier returns a NoopTier.
func NewNoopTier() *NoopTier {
	return &NoopTier{}
}

func (t *NoopTier) Get(ctx context.Context, key cache.Key, fallback Fallback) (any, error) {
	return fallback(ctx)
}

func (t *NoopTier) Put(ctx context.Context, key cache.Key, value any) error {
	return nil
}

func (t *NoopTier) Delete(ctx context.Context, key cache.Key) (bool, error) {
	return false, nil
}

func (t *NoopTier) Invalidate(ctx context.Context, keyType, id string, futureBufferMs int64) error {
	return nil
}

func (t *NoopTier) Layer() cache.Layer {
	return cache.LayerNoop
}

func (t *NoopTier) FlushAll(ctx context.Context) error {
	return nil
}
