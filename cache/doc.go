// Package cache holds the data model shared by the tier, engine, and
// repositorycache packages: cache keys, per-use-case layer configuration,
// the use-case name registry, and the structured error type.
//
// # Overview
//
// Four pieces compose into everything above this package:
//
//   - Key / KeyBuilder: builds a URN-shaped cache key from a key type, id,
//     use case, and ordered args, with or without invalidation-tracking
//     braces.
//   - KeyConfig: per-Layer TTL and ramp percentage for one use case,
//     round-tripping through JSON including the legacy stringified form.
//   - Registry: a process-wide record of claimed use-case names, so two
//     decorators can't silently collide on the same cache namespace.
//   - Error: a single structured error type carrying a Category, so
//     callers can branch with errors.As instead of parsing strings.
//
// # Key Construction
//
//	b := cache.NewKeyBuilder("myapp")
//	key := b.Build("user", "user-123", "GetByID", nil, true, cfg)
//	key.URN        // "{myapp:user:user-123}#GetByID"
//	key.WatermarkKey() // "{myapp:user:user-123}#watermark"
//
// Args are appended to the URN as a query string in the order given;
// WatermarkKey drops the use case and args entirely, since invalidation
// is scoped to (key type, id) regardless of which use case populated the
// entry.
//
// # Config
//
//	cfg := cache.NewEnabledKeyConfig(5 * time.Minute)
//	ttl, ok := cfg.TTL(cache.LayerLocal)
//
// A KeyConfig with no TTL/ramp pair for a layer means that layer is
// skipped for the use case; NewEnabledKeyConfig enables every layer at
// the same TTL and a 100% ramp. Validate checks that every ramp is in
// [0, 100], through github.com/go-ozzo/ozzo-validation/v4; it does not
// check that a layer has both a TTL and a ramp, nor that any layer is
// configured at all.
//
// # Registry
//
// Register claims a use-case name once; a second call for the same name,
// or any call for the reserved name "watermark", fails. engine.NewCached
// calls Register internally so a duplicate registration panics at
// construction time rather than silently sharing a namespace.
//
// # Errors
//
// Every error constructor in this package (ErrAlreadyInstantiated,
// ErrUseCaseAlreadyRegistered, ErrKeyArgMissing, and so on) returns a
// *cache.Error with a distinct Category. Category comparisons are the
// intended way to branch on failure kind:
//
//	if cerr := new(cache.Error); errors.As(err, &cerr) && cerr.Category == cache.CategoryDisabled {
//		// caching is off for this context, not a real failure
//	}
//
// # See Also
//
// For how a Key moves through the local/remote cache chain, see the tier
// package. For the read-through facade built on top of Key/KeyConfig/
// Registry, see the engine package.
package cache
