package tier

import (
	"context"
	"testing"
	"time"

	"github.com/rungalileo/gcache/cache"
)

func enabledConfigProvider(ttl time.Duration) cache.ConfigProvider {
	cfg := cache.NewEnabledKeyConfig(ttl)
	return func(ctx context.Context, key cache.Key) (*cache.KeyConfig, error) {
		return cfg, nil
	}
}

func TestLocalTierCachesWithinTTL(t *testing.T) {
	lt := NewLocalTier(enabledConfigProvider(time.Hour), 0)
	ctx := context.Background()
	key := cache.NewKeyBuilder("urn").Build("user", "42", "get_user", nil, false, nil)

	calls := 0
	fallback := func(ctx context.Context) (any, error) {
		calls++
		return "fetched", nil
	}

	for i := 0; i < 3; i++ {
		val, err := lt.Get(ctx, key, fallback)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if val != "fetched" {
			t.Errorf("Get() = %v, want %q", val, "fetched")
		}
	}
	if calls != 1 {
		t.Errorf("fallback called %d times, want 1 (should be served from cache after first)", calls)
	}
}

func TestLocalTierExpiresAfterTTL(t *testing.T) {
	lt := NewLocalTier(enabledConfigProvider(time.Second), 0)
	ctx := context.Background()
	key := cache.NewKeyBuilder("urn").Build("user", "42", "get_user", nil, false, nil)

	calls := 0
	fallback := func(ctx context.Context) (any, error) {
		calls++
		return calls, nil
	}

	if _, err := lt.Get(ctx, key, fallback); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := lt.Get(ctx, key, fallback); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("fallback called %d times, want 2 (entry should have expired)", calls)
	}
}

func TestLocalTierMissingConfigErrors(t *testing.T) {
	lt := NewLocalTier(cache.NoopConfigProvider, 0)
	ctx := context.Background()
	key := cache.NewKeyBuilder("urn").Build("user", "42", "get_user", nil, false, nil)

	_, err := lt.Get(ctx, key, func(ctx context.Context) (any, error) { return nil, nil })
	if err == nil {
		t.Error("expected error when no config is resolvable and key has no default")
	}
}

func TestLocalTierDeleteAndFlushAll(t *testing.T) {
	lt := NewLocalTier(enabledConfigProvider(time.Hour), 0)
	ctx := context.Background()
	key := cache.NewKeyBuilder("urn").Build("user", "42", "get_user", nil, false, nil)

	if err := lt.Put(ctx, key, "value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	deleted, err := lt.Delete(ctx, key)
	if err != nil || !deleted {
		t.Errorf("Delete() = %v, %v; want true, nil", deleted, err)
	}

	if err := lt.Put(ctx, key, "value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := lt.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll() error = %v", err)
	}
	deleted, _ = lt.Delete(ctx, key)
	if deleted {
		t.Error("Delete() after FlushAll should find nothing")
	}
}
