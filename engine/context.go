package engine

import (
	"context"

	"github.com/rungalileo/gcache/tier"
)

// WithEnabled returns a context carrying the cache-enabled flag, the Go
// equivalent of the original implementation's GCacheContext.enabled
// ContextVar. A context with no flag set is treated as disabled,
// matching the ContextVar's own default. Re-exported from tier so
// callers of engine never need to import tier directly just to set this
// flag; tier.Controller reads the same key these helpers write.
func WithEnabled(ctx context.Context, enabled bool) context.Context {
	return tier.WithEnabled(ctx, enabled)
}

// EnabledFromContext reports whether ctx has opted into caching.
func EnabledFromContext(ctx context.Context) bool {
	return tier.EnabledFromContext(ctx)
}
