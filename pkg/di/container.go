package di

import (
	repository "github.com/goliatone/go-repository-bun"

	"github.com/rungalileo/gcache/cache"
	"github.com/rungalileo/gcache/engine"
	"github.com/rungalileo/gcache/repositorycache"
)

// Container provides dependency injection for cache related components.
// It owns the process-wide Engine singleton and provides factory methods
// for creating cached repositories over it.
type Container struct {
	engine *engine.Engine
	config engine.Config
}

// NewContainer creates a new DI container, constructing the Engine
// singleton from config. Returns cache.ErrAlreadyInstantiated if an
// Engine already exists in this process (call Close to release it
// first, typically only needed between test cases).
func NewContainer(config engine.Config) (*Container, error) {
	eng, err := engine.New(config)
	if err != nil {
		return nil, err
	}

	return &Container{
		engine: eng,
		config: config,
	}, nil
}

// NewContainerWithDefaults creates a new DI container using default
// configuration: a noop config provider, the default Prometheus
// registerer, and a NoopTier remote layer (no Redis dialed).
func NewContainerWithDefaults() (*Container, error) {
	return NewContainer(engine.Config{})
}

// Engine returns the singleton Engine instance. This allows access to the
// underlying cache facade for advanced use cases (direct Invalidate/Delete,
// building engine.Cached wrappers outside of repositorycache).
func (c *Container) Engine() *engine.Engine {
	return c.engine
}

// Config returns a copy of the engine configuration used by this container.
func (c *Container) Config() engine.Config {
	return c.config
}

// Close releases the Engine singleton slot and stops its SyncBridge.
func (c *Container) Close() {
	c.engine.Close()
}

// NewCachedRepository creates a new cached repository that wraps the
// provided base repository, registering its read operations against the
// container's Engine. A nil defaultConfig uses repositorycache's default
// TTL for every read use case.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example:
// NewCachedRepository[User](container, baseUserRepository, nil)
func NewCachedRepository[T any](container *Container, base repository.Repository[T], defaultConfig *cache.KeyConfig) *repositorycache.CachedRepository[T] {
	return repositorycache.New(base, container.engine, defaultConfig)
}

// NewCachedRepositoryWithIdentifierFields is the NewCachedRepository
// variant that also pins explicit identifier field names instead of
// deriving them from the base repository's unique model fields.
func NewCachedRepositoryWithIdentifierFields[T any](container *Container, base repository.Repository[T], defaultConfig *cache.KeyConfig, identifierFields ...string) *repositorycache.CachedRepository[T] {
	return repositorycache.NewWithIdentifierFields(base, container.engine, defaultConfig, identifierFields...)
}
