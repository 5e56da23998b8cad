package di

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rungalileo/gcache/cache"
	"github.com/rungalileo/gcache/engine"
)

func TestNewContainer(t *testing.T) {
	config := engine.Config{
		Config: cache.Config{
			URNPrefix:     "test",
			MetricsPrefix: "test_",
		},
		Registerer:      prometheus.NewRegistry(),
		LocalMaxEntries: 500,
		SyncWorkers:     2,
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	if container == nil {
		t.Fatal("NewContainer() returned nil container")
	}

	if container.Engine() == nil {
		t.Error("Container should have a non-nil Engine")
	}

	storedConfig := container.Config()
	if storedConfig.URNPrefix != config.URNPrefix {
		t.Errorf("Expected URNPrefix %q, got %q", config.URNPrefix, storedConfig.URNPrefix)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	defer container.Close()

	if container == nil {
		t.Fatal("NewContainerWithDefaults() returned nil container")
	}
	if container.Engine() == nil {
		t.Error("Container should have a non-nil Engine")
	}
}

func TestNewContainer_SingletonConflict(t *testing.T) {
	first, err := NewContainer(engine.Config{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer first.Close()

	_, err = NewContainer(engine.Config{Registerer: prometheus.NewRegistry()})
	if err == nil {
		t.Error("expected a second NewContainer() to fail while the first Engine is still live")
	}
}

func TestEngineIntegration(t *testing.T) {
	container, err := NewContainer(engine.Config{Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	defer container.Close()

	eng := container.Engine()

	type widgetArgs struct{ ID string }
	calls := 0
	cached := engine.NewCached[widgetArgs, string](eng, "TestEngineIntegration", engine.Options{
		KeyType:       "widget",
		IDArg:         "ID",
		DefaultConfig: cache.NewEnabledKeyConfig(time.Minute),
	}, func(ctx context.Context, arg widgetArgs) (string, error) {
		calls++
		return "value-for-" + arg.ID, nil
	})

	ctx := engine.WithEnabled(context.Background(), true)
	for i := 0; i < 3; i++ {
		val, err := cached.Call(ctx, widgetArgs{ID: "42"})
		if err != nil {
			t.Fatalf("Call() error = %v", err)
		}
		if val != "value-for-42" {
			t.Errorf("Call() = %q, want value-for-42", val)
		}
	}
	if calls != 1 {
		t.Errorf("underlying function called %d times, want 1", calls)
	}
}
