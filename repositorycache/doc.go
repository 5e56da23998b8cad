// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// This package implements the repository decorator pattern to add caching
// capabilities to existing repository implementations from go-repository-bun.
// The cached repository wraps a base repository and routes its read
// operations through an engine.Engine two-tier cache (in-process LRU, then
// Redis), while write operations delegate directly to the base repository
// and stamp the invalidation watermarks that keep the cache honest.
//
// # Key Features
//
//   - Type-safe caching: Go generics maintain type safety across cached operations
//   - Selective caching: only read operations are cached; writes pass through
//   - Transaction awareness: transaction-based operations bypass cache entirely
//   - Entity and collection-scoped invalidation, driven off real record ids
//   - Scope-aware keys: different multi-tenant scope signatures never collide
//
// # Basic Usage
//
// Create a cached repository by wrapping an existing repository over a
// shared Engine:
//
//	base := myrepo.New(db) // Your existing go-repository-bun repository
//	eng, err := engine.New(engine.Config{RedisConfig: &engine.RedisConfig{Addr: "localhost:6379"}})
//	if err != nil {
//		return err
//	}
//	cached := repositorycache.New(base, eng, cache.NewEnabledKeyConfig(5*time.Minute))
//
//	// Use exactly like your base repository
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx, repository.Where("active", true))
//
// Every call site must opt in to caching by carrying
// engine.WithEnabled(ctx, true) on its context; a context that hasn't opted
// in always falls through to the base repository, matching the Controller's
// conscious-opt-in design.
//
// # Cached vs Pass-through Operations
//
// ## Cached Operations (Read-only)
//
// These operations use the cache for improved performance:
//   - Get, GetByID, GetByIdentifier
//   - List, Count
//
// ## Pass-through Operations
//
// These operations bypass the cache and go directly to the base repository:
//   - All write operations (Create, Update, Upsert, Delete and variants)
//   - All transaction-based operations (*Tx methods)
//   - Raw SQL queries
//
// # Caching Behavior
//
// The cached repository follows a read-through caching pattern, delegated
// entirely to engine.Cached: bind arguments into a cache.Key, check the
// local tier, then the remote tier, and on a full miss call the base
// repository and write the result back through both tiers. A fallback
// error is never written to a tier, so a failing call is retried on every
// invocation rather than replayed from a cached failure.
//
// # Transaction Handling
//
// Operations within transactions (*Tx methods) bypass the cache entirely to
// ensure transaction isolation and consistency. This prevents:
//   - Reading stale cached data within transactions
//   - Cache pollution from uncommitted transaction data
//   - Inconsistent reads across transaction boundaries
//
// # Cache Invalidation Strategy
//
// GetByID and GetByIdentifier are tracked per entity id / identifier value:
// a write to one record invalidates exactly that record's entries. Get,
// List, and Count don't know which rows a call will touch ahead of
// reaching the base repository, so they share one collection-wide
// watermark per repository namespace. Every write stamps all three shapes
// via invalidateRecordCaches: the record's own id, each configured
// identifier value, and the collection watermark.
//
// DeleteMany and DeleteWhere don't hand back the records they removed, so
// only the collection watermark is stamped; any GetByID/GetByIdentifier
// entries for the deleted rows are left to expire on their own TTL.
//
// Watermarks are observed only by the remote tier. With no remote
// configured (the Engine falls back to a NoopTier) invalidation has no
// effect, and an entry held in the local tier is served until its local
// TTL expires, whatever was written since.
//
// # Integration with Dependency Injection
//
// This package is designed to work with the dependency injection container
// provided in pkg/di, which owns the process-wide Engine singleton:
//
//	container, err := di.NewContainer(engine.Config{})
//	if err != nil {
//		return err
//	}
//	cachedRepo := di.NewCachedRepository(container, baseRepo, cache.NewEnabledKeyConfig(5*time.Minute))
//
// # Compatibility
//
// The CachedRepository[T] fully implements the repository.Repository[T]
// interface from go-repository-bun, making it a drop-in replacement for
// existing repository usage. The decorator pattern ensures that all methods
// are available and maintain the same signatures as the base interface.
//
// # Performance Considerations
//
//   - Cache hits avoid database roundtrips for read operations
//   - Bound arguments are rendered into key fragments with minimal overhead
//   - List operations cache both records and total count as a unit
//   - Function-valued criteria in keys use pointer addresses (stable per process)
//
// # Error Handling
//
// Errors from the base repository are propagated unchanged and never
// written to a tier. A key-construction failure other than a missing id
// argument degrades to calling the base repository directly rather than
// failing the request.
//
// # See Also
//
// For cache key, config, and registry details, see the cache package. For
// tier and controller behavior, see the tier package. For the cache facade
// itself, see the engine package. For dependency injection setup, see the
// pkg/di package.
package repositorycache
