package repositorycache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	repository "github.com/goliatone/go-repository-bun"

	"github.com/rungalileo/gcache/cache"
	"github.com/rungalileo/gcache/engine"
)

// TestUser represents a test entity
type TestUser struct {
	ID       string `json:"id" bun:"id,pk"`
	Name     string `json:"name" bun:"name"`
	Email    string `json:"email" bun:"email,unique"`
	Username string `json:"username" bun:"username,unique"`
}

// mockRepository is a comprehensive mock that tracks method calls for testing
type mockRepository[T any] struct {
	mu             sync.Mutex
	calls          []string
	getResult      T
	getError       error
	getByIDResult  T
	getByIDError   error
	listRecords    []T
	listTotal      int
	listError      error
	countResult    int
	countError     error
	getByIDResult2 T
	getByIDError2  error
	createResult   T
	createError    error
	updateResult   T
	updateError    error
	deleteError    error
	scopeDefaults  repository.ScopeDefaults
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) callCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRepository[T]) clearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// READ methods that we want to test caching for
func (m *mockRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("Get")
	return m.getResult, m.getError
}

func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("GetByID")
	return m.getByIDResult, m.getByIDError
}

func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("List")
	return m.listRecords, m.listTotal, m.listError
}

func (m *mockRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	return m.countResult, m.countError
}

func (m *mockRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("GetByIdentifier")
	return m.getByIDResult2, m.getByIDError2
}

// WRITE methods that we want to test delegation for
func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.recordCall("Create")
	return m.createResult, m.createError
}

func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.recordCall("Update")
	return m.updateResult, m.updateError
}

func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	m.recordCall("Delete")
	return m.deleteError
}

func (m *mockRepository[T]) RegisterScope(name string, scope repository.ScopeDefinition) {
	m.recordCall("RegisterScope")
}

func (m *mockRepository[T]) SetScopeDefaults(defaults repository.ScopeDefaults) {
	m.recordCall("SetScopeDefaults")
	m.scopeDefaults = repository.CloneScopeDefaults(defaults)
}

func (m *mockRepository[T]) GetScopeDefaults() repository.ScopeDefaults {
	return repository.CloneScopeDefaults(m.scopeDefaults)
}

// Other methods that panic to ensure they're not called during our tests
func (m *mockRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	panic("Raw not implemented in mock - should not be called in cache tests")
}
func (m *mockRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	panic("RawTx not implemented in mock")
}
func (m *mockRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetTx not implemented in mock")
}
func (m *mockRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIDTx not implemented in mock")
}
func (m *mockRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	panic("ListTx not implemented in mock")
}
func (m *mockRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	panic("CountTx not implemented in mock")
}
func (m *mockRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	panic("CreateTx not implemented in mock")
}
func (m *mockRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	m.recordCall("CreateMany")
	return records, m.createError
}
func (m *mockRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	panic("CreateManyTx not implemented in mock")
}
func (m *mockRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	panic("GetOrCreate not implemented in mock")
}
func (m *mockRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	panic("GetOrCreateTx not implemented in mock")
}
func (m *mockRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIdentifierTx not implemented in mock")
}
func (m *mockRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpdateTx not implemented in mock")
}
func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.recordCall("UpdateMany")
	return records, m.updateError
}
func (m *mockRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpdateManyTx not implemented in mock")
}
func (m *mockRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("Upsert not implemented in mock")
}
func (m *mockRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpsertTx not implemented in mock")
}
func (m *mockRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertMany not implemented in mock")
}
func (m *mockRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertManyTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("DeleteTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteMany")
	return m.deleteError
}
func (m *mockRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteManyTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.recordCall("DeleteWhere")
	return m.deleteError
}
func (m *mockRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteWhereTx not implemented in mock")
}
func (m *mockRepository[T]) ForceDelete(ctx context.Context, record T) error {
	panic("ForceDelete not implemented in mock")
}
func (m *mockRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("ForceDeleteTx not implemented in mock")
}
func (m *mockRepository[T]) Handlers() repository.ModelHandlers[T] {
	panic("Handlers not implemented in mock")
}

var _ repository.Repository[TestUser] = (*mockRepository[TestUser])(nil)

// newTestEngine builds a fresh Engine against its own Prometheus registry so
// every test owns an independent singleton slot, and registers a cleanup
// that releases it regardless of how the test exits.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

// newRemoteTestEngine builds an Engine whose remote tier talks to an
// in-memory miniredis server. Invalidation watermarks are observed only
// by the remote tier (the local tier serves an entry until its TTL), so
// the invalidation tests read through this engine with remoteOnlyConfig.
func newRemoteTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() failed: %v", err)
	}
	t.Cleanup(mr.Close)
	eng, err := engine.New(engine.Config{
		Registerer:         prometheus.NewRegistry(),
		RedisClientFactory: func() *redis.Client { return redis.NewClient(&redis.Options{Addr: mr.Addr()}) },
	})
	if err != nil {
		t.Fatalf("engine.New() failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

// remoteOnlyConfig ramps the local layer to 0 and the remote layer to 100,
// so every cached read goes through the remote tier.
func remoteOnlyConfig() *cache.KeyConfig {
	return &cache.KeyConfig{
		TTLSeconds: map[cache.Layer]int{cache.LayerLocal: 60, cache.LayerRemote: 60},
		Ramp:       map[cache.Layer]int{cache.LayerLocal: 0, cache.LayerRemote: 100},
	}
}

func enabledCtx() context.Context {
	return engine.WithEnabled(context.Background(), true)
}

func TestNew(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)

	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))

	if cached == nil {
		t.Fatal("New() returned nil")
	}
	if cached.base != baseRepo {
		t.Error("base repository not stored correctly")
	}
	if cached.engine != eng {
		t.Error("engine not stored correctly")
	}
	if cached.namespace != "test_user" {
		t.Errorf("expected namespace 'test_user', got %q", cached.namespace)
	}
}

func TestNewWithIdentifierFields(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)

	cached := NewWithIdentifierFields[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute), "Email", "Username")

	if len(cached.identifiers) != 2 {
		t.Fatalf("expected 2 identifier fields, got %v", cached.identifiers)
	}
}

// Cache-hit behavior: a second call for the same arguments must not reach
// the base repository.
func TestCachedReadMethods_CacheHit(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))
	ctx := enabledCtx()

	baseRepo.getResult = TestUser{ID: "get-1", Name: "Get User"}
	baseRepo.getByIDResult = TestUser{ID: "user-1", Name: "GetByID User"}
	baseRepo.listRecords = []TestUser{{ID: "1", Name: "User 1"}, {ID: "2", Name: "User 2"}}
	baseRepo.listTotal = 2
	baseRepo.countResult = 42
	baseRepo.getByIDResult2 = TestUser{ID: "user-2", Name: "Identifier User"}

	if _, err := cached.Get(ctx); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := cached.GetByID(ctx, "user-1"); err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if _, err := cached.GetByIdentifier(ctx, "identifier-1"); err != nil {
		t.Fatalf("GetByIdentifier failed: %v", err)
	}

	for _, method := range []string{"Get", "GetByID", "List", "Count", "GetByIdentifier"} {
		if n := baseRepo.callCount(method); n != 1 {
			t.Errorf("expected %s to be called once before cache warm-up, got %d", method, n)
		}
	}
	baseRepo.clearCalls()

	// Second round should be served from cache.
	if _, err := cached.Get(ctx); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if _, err := cached.GetByID(ctx, "user-1"); err != nil {
		t.Fatalf("second GetByID failed: %v", err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("second List failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("second Count failed: %v", err)
	}
	if _, err := cached.GetByIdentifier(ctx, "identifier-1"); err != nil {
		t.Fatalf("second GetByIdentifier failed: %v", err)
	}

	if calls := baseRepo.getCalls(); len(calls) != 0 {
		t.Fatalf("expected no repository calls on cache hit, got %v", calls)
	}
}

// Cache tags attached via WithCacheTags must segment cache entries: two
// calls that differ only by tag must not collide on the same key.
func TestCachedReadMethods_CacheTagsSegmentKeys(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))

	baseRepo.getResult = TestUser{ID: "get-1", Name: "Get User"}
	ctxV1 := WithCacheTags(enabledCtx(), "v1")
	ctxV2 := WithCacheTags(enabledCtx(), "v2")

	if _, err := cached.Get(ctxV1); err != nil {
		t.Fatalf("Get(v1) failed: %v", err)
	}
	if _, err := cached.Get(ctxV2); err != nil {
		t.Fatalf("Get(v2) failed: %v", err)
	}
	if n := baseRepo.callCount("Get"); n != 2 {
		t.Fatalf("expected Get to be called once per distinct tag set, got %d", n)
	}
	baseRepo.clearCalls()

	// Same tag set again must hit the cache rather than the base repository.
	if _, err := cached.Get(WithCacheTags(enabledCtx(), "v1")); err != nil {
		t.Fatalf("second Get(v1) failed: %v", err)
	}
	if calls := baseRepo.getCalls(); len(calls) != 0 {
		t.Fatalf("expected no repository call on cache hit, got %v", calls)
	}
}

// Cache-miss behavior: distinct arguments never collide on the same entry.
func TestCachedReadMethods_CacheMiss(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))
	ctx := enabledCtx()

	baseRepo.getByIDResult = TestUser{ID: "user-a", Name: "A"}
	if _, err := cached.GetByID(ctx, "user-a"); err != nil {
		t.Fatalf("GetByID(user-a) failed: %v", err)
	}

	baseRepo.getByIDResult = TestUser{ID: "user-b", Name: "B"}
	if _, err := cached.GetByID(ctx, "user-b"); err != nil {
		t.Fatalf("GetByID(user-b) failed: %v", err)
	}

	if n := baseRepo.callCount("GetByID"); n != 2 {
		t.Fatalf("expected GetByID to be called once per distinct id, got %d", n)
	}
}

// An error from the base repository is never written to a tier, so every
// call is retried rather than replayed from a cached failure.
func TestCachedReadMethods_ErrorsAreNotCached(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))
	ctx := enabledCtx()

	baseRepo.getError = errors.New("repository error")

	_, err := cached.Get(ctx)
	if err == nil || err.Error() != "repository error" {
		t.Fatalf("expected 'repository error', got %v", err)
	}

	_, err = cached.Get(ctx)
	if err == nil || err.Error() != "repository error" {
		t.Fatalf("expected 'repository error' again, got %v", err)
	}

	if n := baseRepo.callCount("Get"); n != 2 {
		t.Errorf("expected base repository to be retried on every call since errors aren't cached, got %d calls", n)
	}
}

// Two different scope signatures over the same arguments must not collide.
func TestCachedRepository_ScopeAwareKeys(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))

	ctxTenantA := repository.WithSelectScopes(context.Background(), "tenant")
	ctxTenantA = repository.WithScopeData(ctxTenantA, "tenant", "tenant-a")
	ctxTenantA = engine.WithEnabled(ctxTenantA, true)

	ctxTenantB := repository.WithSelectScopes(context.Background(), "tenant")
	ctxTenantB = repository.WithScopeData(ctxTenantB, "tenant", "tenant-b")
	ctxTenantB = engine.WithEnabled(ctxTenantB, true)

	baseRepo.getResult = TestUser{ID: "tenant-a", Name: "Tenant A"}
	userA, err := cached.Get(ctxTenantA)
	if err != nil {
		t.Fatalf("unexpected error fetching tenant A: %v", err)
	}
	if userA.ID != "tenant-a" {
		t.Fatalf("expected tenant-a record, got %s", userA.ID)
	}

	baseRepo.getResult = TestUser{ID: "tenant-b", Name: "Tenant B"}
	userB, err := cached.Get(ctxTenantB)
	if err != nil {
		t.Fatalf("unexpected error fetching tenant B: %v", err)
	}
	if userB.ID != "tenant-b" {
		t.Fatalf("expected tenant-b record, got %s", userB.ID)
	}

	if n := baseRepo.callCount("Get"); n != 2 {
		t.Fatalf("expected one base repository call per distinct scope, got %d", n)
	}

	baseRepo.clearCalls()

	// Re-fetching tenant A should be served from its own cache entry.
	again, err := cached.Get(ctxTenantA)
	if err != nil {
		t.Fatalf("unexpected error re-fetching tenant A: %v", err)
	}
	if again.ID != "tenant-a" {
		t.Fatalf("expected cached tenant-a record, got %s", again.ID)
	}
	if calls := baseRepo.getCalls(); len(calls) != 0 {
		t.Fatalf("expected no additional base repo calls, got %v", calls)
	}
}

// Write methods always delegate to the base repository.
func TestWriteMethodsDelegation(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))
	ctx := enabledCtx()

	baseRepo.createResult = TestUser{ID: "created-1", Name: "Created"}
	if _, err := cached.Create(ctx, TestUser{Name: "Created"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if n := baseRepo.callCount("Create"); n != 1 {
		t.Errorf("expected Create to delegate once, got %d", n)
	}

	baseRepo.updateResult = TestUser{ID: "created-1", Name: "Updated"}
	if _, err := cached.Update(ctx, baseRepo.updateResult); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if n := baseRepo.callCount("Update"); n != 1 {
		t.Errorf("expected Update to delegate once, got %d", n)
	}

	if err := cached.Delete(ctx, baseRepo.updateResult); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n := baseRepo.callCount("Delete"); n != 1 {
		t.Errorf("expected Delete to delegate once, got %d", n)
	}
}

// Creating a record invalidates the shared collection watermark that List
// and Count read through.
func TestCacheInvalidation_Create(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newRemoteTestEngine(t)
	cached := New[TestUser](baseRepo, eng, remoteOnlyConfig())
	ctx := enabledCtx()

	baseRepo.listRecords = []TestUser{{ID: "user-1", Name: "User 1"}, {ID: "user-2", Name: "User 2"}}
	baseRepo.listTotal = 2
	baseRepo.countResult = 2

	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("initial List failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("initial Count failed: %v", err)
	}
	baseRepo.clearCalls()

	// Warm reads confirm the cache is populated.
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("cached List failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("cached Count failed: %v", err)
	}
	if calls := baseRepo.getCalls(); len(calls) != 0 {
		t.Fatalf("expected cache hits before create, got %v", calls)
	}

	baseRepo.listRecords = append(baseRepo.listRecords, TestUser{ID: "user-3", Name: "User 3"})
	baseRepo.listTotal = 3
	baseRepo.countResult = 3
	baseRepo.createResult = TestUser{ID: "user-3", Name: "User 3"}

	if _, err := cached.Create(ctx, TestUser{Name: "User 3"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	baseRepo.clearCalls()

	records, total, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("List after create failed: %v", err)
	}
	if len(records) != 3 || total != 3 {
		t.Errorf("expected 3 records/total after create, got %d/%d", len(records), total)
	}

	count, err := cached.Count(ctx)
	if err != nil {
		t.Fatalf("Count after create failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3 after create, got %d", count)
	}

	if calls := baseRepo.getCalls(); len(calls) != 2 {
		t.Errorf("expected List and Count to miss after create invalidation, got %v", calls)
	}
}

// Updating a record invalidates its own GetByID entry plus the shared
// collection watermark.
func TestCacheInvalidation_Update(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newRemoteTestEngine(t)
	cached := New[TestUser](baseRepo, eng, remoteOnlyConfig())
	ctx := enabledCtx()

	originalUser := TestUser{ID: "user-1", Name: "Original User"}
	updatedUser := TestUser{ID: "user-1", Name: "Updated User"}

	baseRepo.getByIDResult = originalUser
	baseRepo.listRecords = []TestUser{originalUser}
	baseRepo.listTotal = 1
	baseRepo.countResult = 1

	if _, err := cached.GetByID(ctx, "user-1"); err != nil {
		t.Fatalf("initial GetByID failed: %v", err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("initial List failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("initial Count failed: %v", err)
	}
	baseRepo.clearCalls()

	baseRepo.updateResult = updatedUser
	baseRepo.getByIDResult = updatedUser
	baseRepo.listRecords = []TestUser{updatedUser}

	if _, err := cached.Update(ctx, updatedUser); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	baseRepo.clearCalls()

	user, err := cached.GetByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetByID after update failed: %v", err)
	}
	if user.Name != "Updated User" {
		t.Errorf("expected 'Updated User' after update invalidation, got %q", user.Name)
	}

	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("List after update failed: %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatalf("Count after update failed: %v", err)
	}

	if calls := baseRepo.getCalls(); len(calls) != 3 {
		t.Errorf("expected GetByID, List and Count to all miss after update invalidation, got %v", calls)
	}
}

// Deleting a record invalidates it the same way an update does.
func TestCacheInvalidation_Delete(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newRemoteTestEngine(t)
	cached := New[TestUser](baseRepo, eng, remoteOnlyConfig())
	ctx := enabledCtx()

	userToDelete := TestUser{ID: "user-1", Name: "User to Delete"}
	baseRepo.listRecords = []TestUser{userToDelete, {ID: "user-2", Name: "User 2"}}
	baseRepo.listTotal = 2
	baseRepo.countResult = 2

	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("initial List failed: %v", err)
	}
	baseRepo.clearCalls()

	baseRepo.listRecords = []TestUser{{ID: "user-2", Name: "User 2"}}
	baseRepo.listTotal = 1
	baseRepo.countResult = 1

	if err := cached.Delete(ctx, userToDelete); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	baseRepo.clearCalls()

	records, total, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("List after delete failed: %v", err)
	}
	if len(records) != 1 || total != 1 {
		t.Errorf("expected 1 record/total after delete, got %d/%d", len(records), total)
	}
	if calls := baseRepo.getCalls(); len(calls) != 1 {
		t.Errorf("expected List to miss after delete invalidation, got %v", calls)
	}
}

// Bulk create/update invalidate every affected record plus the collection.
func TestCacheInvalidation_BulkOperations(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newRemoteTestEngine(t)
	cached := New[TestUser](baseRepo, eng, remoteOnlyConfig())
	ctx := enabledCtx()

	baseRepo.getByIDResult = TestUser{ID: "bulk-1", Name: "Original 1"}
	if _, err := cached.GetByID(ctx, "bulk-1"); err != nil {
		t.Fatalf("initial GetByID failed: %v", err)
	}
	baseRepo.clearCalls()

	updated := []TestUser{{ID: "bulk-1", Name: "Updated 1"}, {ID: "bulk-2", Name: "Updated 2"}}
	if _, err := cached.UpdateMany(ctx, updated); err != nil {
		t.Fatalf("UpdateMany failed: %v", err)
	}
	baseRepo.clearCalls()

	baseRepo.getByIDResult = updated[0]
	user, err := cached.GetByID(ctx, "bulk-1")
	if err != nil {
		t.Fatalf("GetByID after UpdateMany failed: %v", err)
	}
	if user.Name != "Updated 1" {
		t.Errorf("expected 'Updated 1', got %q", user.Name)
	}
	if n := baseRepo.callCount("GetByID"); n != 1 {
		t.Errorf("expected GetByID to miss after UpdateMany invalidation, got %d calls", n)
	}
}

// DeleteMany/DeleteWhere don't hand back the affected rows, so only the
// collection watermark is stamped; entity-scoped entries expire on TTL.
func TestCacheInvalidation_CriteriaOperations(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newRemoteTestEngine(t)
	cached := New[TestUser](baseRepo, eng, remoteOnlyConfig())
	ctx := enabledCtx()

	baseRepo.listRecords = []TestUser{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}}
	baseRepo.listTotal = 2
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatalf("initial List failed: %v", err)
	}
	baseRepo.clearCalls()

	baseRepo.listRecords = nil
	baseRepo.listTotal = 0
	if err := cached.DeleteWhere(ctx); err != nil {
		t.Fatalf("DeleteWhere failed: %v", err)
	}
	baseRepo.clearCalls()

	records, total, err := cached.List(ctx)
	if err != nil {
		t.Fatalf("List after DeleteWhere failed: %v", err)
	}
	if len(records) != 0 || total != 0 {
		t.Errorf("expected empty result after DeleteWhere invalidation, got %d/%d", len(records), total)
	}
	if n := baseRepo.callCount("List"); n != 1 {
		t.Errorf("expected List to miss after DeleteWhere invalidation, got %d calls", n)
	}
}

// Concurrent reads and writes must not race or panic.
func TestCacheInvalidation_Concurrent(t *testing.T) {
	baseRepo := &mockRepository[TestUser]{}
	eng := newTestEngine(t)
	cached := New[TestUser](baseRepo, eng, cache.NewEnabledKeyConfig(time.Minute))
	ctx := enabledCtx()

	baseRepo.getByIDResult = TestUser{ID: "race-1", Name: "Race User"}
	baseRepo.updateResult = TestUser{ID: "race-1", Name: "Race User Updated"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = cached.GetByID(ctx, "race-1")
		}()
		go func() {
			defer wg.Done()
			_, _ = cached.Update(ctx, baseRepo.updateResult)
		}()
	}
	wg.Wait()
}
