package rig

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/driver"
)

// Logger is a minimal logging interface to avoid coupling to a specific
// logging library. Compatible with zap's SugaredLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...any) {}
func (noopLogger) Info(msg string, keysAndValues ...any)  {}
func (noopLogger) Warn(msg string, keysAndValues ...any)  {}
func (noopLogger) Error(msg string, keysAndValues ...any) {}

// Entry is a running instrument: its persisted record, the live
// instrument session, and the adapter that serializes access to it.
type Entry struct {
	Record     *InstrumentRecord
	Instrument *driver.Instrument
	Adapter    *adapter.Adapter
}

// Registry owns the set of running instruments. It loads records from
// the repository, opens their transports, builds instruments through
// the catalog, and wraps each one in an adapter. All methods are safe
// for concurrent use.
type Registry struct {
	repo    Repository
	catalog *Catalog
	logger  Logger

	mu       sync.RWMutex
	running  map[string]*Entry
	observer adapter.Observer
	closed   bool
}

// NewRegistry creates a registry over the given repository and catalog.
func NewRegistry(repo Repository, catalog *Catalog) *Registry {
	return &Registry{
		repo:    repo,
		catalog: catalog,
		logger:  noopLogger{},
		running: make(map[string]*Entry),
	}
}

// SetLogger sets the logger for registry lifecycle messages.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// SetObserver sets the completion observer applied to every running
// adapter, current and future. Pass nil to remove it.
func (r *Registry) SetObserver(fn adapter.Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observer = fn
	for _, entry := range r.running {
		entry.Adapter.SetObserver(fn)
	}
}

// StartAll starts every enabled instrument in the repository. Failures
// are logged and skipped so one broken device cannot keep the rest of
// the rig down. Returns the number of instruments started.
func (r *Registry) StartAll(ctx context.Context) (int, error) {
	records, err := r.repo.ListEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing enabled instruments: %w", err)
	}

	started := 0
	for i := range records {
		rec := &records[i]
		if err := r.Start(ctx, rec.Name); err != nil {
			r.logger.Error("instrument start failed",
				"name", rec.Name,
				"driver", rec.Driver,
				"error", err)
			continue
		}
		started++
	}
	return started, nil
}

// Start loads the named record and brings the instrument online.
// Returns ErrRecordNotFound if no record exists, ErrDisabled if the
// record is disabled, and ErrAlreadyRunning if it is already started.
func (r *Registry) Start(ctx context.Context, name string) error {
	rec, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if !rec.Enabled {
		return fmt.Errorf("%w: %s", ErrDisabled, name)
	}

	builder, err := r.catalog.Builder(rec.Driver)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, running := r.running[name]; running {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}

	tr, err := OpenTransport(ctx, rec.Transport)
	if err != nil {
		return fmt.Errorf("opening transport for %s: %w", name, err)
	}

	inst, err := builder(rec, tr)
	if err != nil {
		tr.Close()
		return fmt.Errorf("building instrument %s: %w", name, err)
	}

	a, err := adapter.New(adapter.Options{
		Instrument: inst,
		Logger:     r.logger,
	})
	if err != nil {
		inst.Close()
		return fmt.Errorf("starting adapter for %s: %w", name, err)
	}
	a.SetObserver(r.observer)

	r.running[name] = &Entry{Record: rec, Instrument: inst, Adapter: a}
	r.logger.Info("instrument started", "name", name, "driver", rec.Driver)
	return nil
}

// Stop takes the named instrument offline. The adapter drains first so
// no operation is cut off mid-exchange, then the instrument closes its
// transport. Returns ErrNotRunning if the instrument is not started.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	entry, running := r.running[name]
	if running {
		delete(r.running, name)
	}
	r.mu.Unlock()

	if !running {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}

	if err := entry.Adapter.Close(); err != nil {
		r.logger.Warn("adapter close failed", "name", name, "error", err)
	}
	if err := entry.Instrument.Close(); err != nil {
		r.logger.Warn("instrument close failed", "name", name, "error", err)
	}
	r.logger.Info("instrument stopped", "name", name)
	return nil
}

// Get returns the running entry for the named instrument.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.running[name]
	return entry, ok
}

// List returns the running entries sorted by instrument name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.running))
	for _, entry := range r.running {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Record.Name < entries[j].Record.Name
	})
	return entries
}

// Advance moves simulated time forward on every running instrument
// whose transport supports it. Real hardware ignores the tick; the
// virtual furnace integrates its thermal model. Returns the number of
// transports advanced.
func (r *Registry) Advance(d time.Duration) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	advanced := 0
	for _, entry := range r.running {
		if sim, ok := entry.Instrument.Transport().(interface{ Advance(time.Duration) }); ok {
			sim.Advance(d)
			advanced++
		}
	}
	return advanced
}

// Close stops every running instrument and rejects further starts.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	names := make([]string, 0, len(r.running))
	for name := range r.running {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		if err := r.Stop(name); err != nil {
			r.logger.Warn("instrument stop failed", "name", name, "error", err)
		}
	}
	return nil
}
