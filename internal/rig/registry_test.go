package rig

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/virtual"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// furnaceBuilder assembles a virtual furnace instrument from its record.
func furnaceBuilder(rec *InstrumentRecord, tr driver.Transport) (*driver.Instrument, error) {
	furnace, ok := tr.(*virtual.Furnace)
	if !ok {
		return nil, fmt.Errorf("virtual.furnace driver needs a virtual transport, got %T", tr)
	}
	return virtual.Bind(rec.Name, furnace)
}

// setupRegistry creates a registry over an in-memory repository with the
// virtual furnace driver registered.
func setupRegistry(t *testing.T) (*Registry, Repository) {
	t.Helper()

	repo := NewSQLiteRepository(openRecordDB(t))
	catalog := NewCatalog()
	if err := catalog.Register("virtual.furnace", furnaceBuilder); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	registry := NewRegistry(repo, catalog)
	t.Cleanup(func() {
		registry.Close()
	})
	return registry, repo
}

func createRecord(t *testing.T, repo Repository, name string, enabled bool) {
	t.Helper()

	rec := &InstrumentRecord{
		Name:      name,
		Driver:    "virtual.furnace",
		Transport: TransportSpec{Kind: TransportVirtual},
		Enabled:   enabled,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Catalog
// =============================================================================

func TestCatalogRegister(t *testing.T) {
	catalog := NewCatalog()

	if err := catalog.Register("virtual.furnace", furnaceBuilder); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := catalog.Register("virtual.furnace", furnaceBuilder)
	if !errors.Is(err, ErrDriverExists) {
		t.Errorf("duplicate Register() error = %v, want ErrDriverExists", err)
	}
}

func TestCatalogBuilder(t *testing.T) {
	catalog := NewCatalog()
	if err := catalog.Register("virtual.furnace", furnaceBuilder); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := catalog.Builder("virtual.furnace"); err != nil {
		t.Errorf("Builder() error = %v", err)
	}
	_, err := catalog.Builder("acme.toaster")
	if !errors.Is(err, ErrDriverUnknown) {
		t.Errorf("Builder() error = %v, want ErrDriverUnknown", err)
	}
}

func TestCatalogDrivers(t *testing.T) {
	catalog := NewCatalog()
	for _, name := range []string{"pfeiffer.tpg", "fluke.18x", "virtual.furnace"} {
		if err := catalog.Register(name, furnaceBuilder); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	got := catalog.Drivers()
	want := []string{"fluke.18x", "pfeiffer.tpg", "virtual.furnace"}
	if len(got) != len(want) {
		t.Fatalf("Drivers() returned %d names, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Drivers()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestOpenTransport(t *testing.T) {
	tr, err := OpenTransport(context.Background(), TransportSpec{Kind: TransportVirtual})
	if err != nil {
		t.Fatalf("OpenTransport(virtual) error = %v", err)
	}
	defer tr.Close()
	if _, ok := tr.(*virtual.Furnace); !ok {
		t.Errorf("OpenTransport(virtual) = %T, want *virtual.Furnace", tr)
	}

	_, err = OpenTransport(context.Background(), TransportSpec{Kind: TransportKind("pigeon")})
	if !errors.Is(err, ErrInvalidTransport) {
		t.Errorf("OpenTransport(unknown) error = %v, want ErrInvalidTransport", err)
	}
}

// =============================================================================
// Registry Lifecycle
// =============================================================================

func TestRegistryStart(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	ctx := testCtx(t)

	if err := registry.Start(ctx, "furnace-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	entry, ok := registry.Get("furnace-1")
	if !ok {
		t.Fatal("Get() did not find started instrument")
	}
	if entry.Record.Name != "furnace-1" {
		t.Errorf("entry record name = %q, want %q", entry.Record.Name, "furnace-1")
	}

	// The instrument answers through its adapter once started.
	op, err := entry.Adapter.Get("measure")
	if err != nil {
		t.Fatalf("Adapter.Get() error = %v", err)
	}
	result, err := op.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if temp, ok := result.(float64); !ok || temp != 23.0 {
		t.Errorf("measure = %v, want 23.0", result)
	}
}

func TestRegistryStartErrors(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	createRecord(t, repo, "furnace-off", false)

	rec := &InstrumentRecord{
		Name:      "mystery-box",
		Driver:    "acme.toaster",
		Transport: TransportSpec{Kind: TransportVirtual},
		Enabled:   true,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ctx := testCtx(t)

	t.Run("record not found", func(t *testing.T) {
		err := registry.Start(ctx, "nonexistent")
		if !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("Start() error = %v, want ErrRecordNotFound", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		err := registry.Start(ctx, "furnace-off")
		if !errors.Is(err, ErrDisabled) {
			t.Errorf("Start() error = %v, want ErrDisabled", err)
		}
	})

	t.Run("unknown driver", func(t *testing.T) {
		err := registry.Start(ctx, "mystery-box")
		if !errors.Is(err, ErrDriverUnknown) {
			t.Errorf("Start() error = %v, want ErrDriverUnknown", err)
		}
	})

	t.Run("already running", func(t *testing.T) {
		if err := registry.Start(ctx, "furnace-1"); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		err := registry.Start(ctx, "furnace-1")
		if !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
		}
	})
}

func TestRegistryStop(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	ctx := testCtx(t)

	if err := registry.Start(ctx, "furnace-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := registry.Stop("furnace-1"); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, ok := registry.Get("furnace-1"); ok {
		t.Error("Get() found instrument after Stop()")
	}

	err := registry.Stop("furnace-1")
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop() error = %v, want ErrNotRunning", err)
	}

	// A stopped instrument can start again.
	if err := registry.Start(ctx, "furnace-1"); err != nil {
		t.Errorf("restart error = %v", err)
	}
}

func TestRegistryStartAll(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	createRecord(t, repo, "furnace-2", true)
	createRecord(t, repo, "furnace-off", false)

	// An enabled record with an unregistered driver is logged and skipped.
	rec := &InstrumentRecord{
		Name:      "mystery-box",
		Driver:    "acme.toaster",
		Transport: TransportSpec{Kind: TransportVirtual},
		Enabled:   true,
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	started, err := registry.StartAll(testCtx(t))
	if err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if started != 2 {
		t.Errorf("StartAll() started %d instruments, want 2", started)
	}

	entries := registry.List()
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].Record.Name != "furnace-1" || entries[1].Record.Name != "furnace-2" {
		t.Errorf("List() order = [%s, %s], want [furnace-1, furnace-2]",
			entries[0].Record.Name, entries[1].Record.Name)
	}
}

func TestRegistryAdvance(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	ctx := testCtx(t)

	if err := registry.Start(ctx, "furnace-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	entry, _ := registry.Get("furnace-1")

	op, err := entry.Adapter.Set("setpoint", 200.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := op.Await(ctx); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	if advanced := registry.Advance(time.Minute); advanced != 1 {
		t.Errorf("Advance() = %d transports, want 1", advanced)
	}

	op, err = entry.Adapter.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	result, err := op.Await(ctx)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if temp := result.(float64); temp <= 30.0 {
		t.Errorf("measure after a minute of heating = %v, want above 30.0", temp)
	}
}

func TestRegistryObserver(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	ctx := testCtx(t)

	events := make(chan adapter.Event, 8)
	registry.SetObserver(func(e adapter.Event) {
		events <- e
	})

	if err := registry.Start(ctx, "furnace-1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	entry, _ := registry.Get("furnace-1")

	op, err := entry.Adapter.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := op.Await(ctx); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	select {
	case event := <-events:
		if event.Instrument != "furnace-1" {
			t.Errorf("event instrument = %q, want %q", event.Instrument, "furnace-1")
		}
		if event.Path != "measure" {
			t.Errorf("event path = %q, want %q", event.Path, "measure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
}

func TestRegistryClose(t *testing.T) {
	registry, repo := setupRegistry(t)
	createRecord(t, repo, "furnace-1", true)
	createRecord(t, repo, "furnace-2", true)
	ctx := testCtx(t)

	if _, err := registry.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}

	if err := registry.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if entries := registry.List(); len(entries) != 0 {
		t.Errorf("List() after Close() returned %d entries, want 0", len(entries))
	}

	err := registry.Start(ctx, "furnace-1")
	if !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("Start() after Close() error = %v, want ErrRegistryClosed", err)
	}

	// Close is idempotent.
	if err := registry.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
